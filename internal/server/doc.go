// Package server provides the HTTP surface of the operation watcher.
//
// Available endpoints (GET only):
//   - /metrics          : Prometheus metrics endpoint
//   - /health           : Liveness probe (always returns 200)
//   - /ready            : Readiness probe (200 once the checkpoint store was scanned)
//   - /operations       : JSON list of watched operations
//   - /operations/{id}  : One operation by checkpoint id, 404 when unknown
//
// The server is configured with sensible timeout defaults:
//   - Read timeout: 15 seconds
//   - Write timeout: 15 seconds
//   - Idle timeout: 60 seconds
//
// Example usage:
//
//	srv := server.NewServer(cfg, w, registry, log)
//	go func() {
//		serverErrors <- srv.Start()
//	}()
//	...
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	srv.Shutdown(ctx)
package server
