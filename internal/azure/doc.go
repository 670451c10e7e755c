// Package azure connects the polling engine to Azure Resource Manager.
//
// It handles:
//   - Authentication using Azure Default Credentials and a bearer-token policy
//   - Request telemetry and per-request timeouts through an azcore pipeline
//   - Resolution of relative request URLs against the configured endpoint
//   - Typed final results through a small registry of result types
//
// The main types are:
//   - PipelineSender: transport.Sender over an azcore pipeline
//   - ResultType: begins or resumes an operation decoding into one model
//   - Poller: a typed operation with its result type erased
//
// Example usage:
//
//	sender, err := azure.NewSender(cfg, log)
//	if err != nil {
//		log.Fatal(err)
//	}
//	d := lro.NewDispatcher(sender, lro.Options{Logger: log})
//
//	rt, _ := azure.LookupResultType(azure.ResultResourceGroup)
//	p, err := rt.Begin(ctx, d, req)
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := p.Wait(ctx)
package azure
