// Package collector implements a Prometheus collector for the long-running
// operation polling engine.
//
// PollCollector is both a prometheus.Collector and an lro.Observer: passing it
// as Options.Observer to lro.NewDispatcher records every operation the
// dispatcher drives.
//
// The collector exposes the following metrics:
//   - azure_lro_operations_started_total{strategy}
//   - azure_lro_polls_total{strategy,result}
//   - azure_lro_poll_duration_seconds{strategy}
//   - azure_lro_operations_finished_total{strategy,status}
//   - azure_lro_operations_in_flight
//   - azure_lro_last_poll_timestamp_seconds
//   - azure_lro_build_info
//
// Example usage:
//
//	pc := collector.NewPollCollector()
//	prometheus.MustRegister(pc)
//	d := lro.NewDispatcher(sender, lro.Options{Observer: pc})
package collector
