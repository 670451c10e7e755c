// Package lro implements the Azure Resource Manager long-running operation
// protocol: classify the initial response of a PUT, PATCH, POST or DELETE,
// pick a polling strategy and poll until the operation reaches Succeeded,
// Failed or Canceled.
//
// Strategies (see Kind):
//   - AzureAsyncOperation: polls the Azure-AsyncOperation header URL and reads
//     the top-level "status" field. A fresh header on a poll response re-points
//     the next poll.
//   - Location: polls the Location header URL; 202 means in progress, any other
//     2xx means done and is the result.
//   - ProvisioningState: re-GETs the original URL and reads
//     "properties.provisioningState".
//   - Completed: the operation had already finished when the initial response
//     arrived; polling is a no-op.
//
// The inter-poll delay comes from Retry-After (seconds), then retry-after-ms or
// x-ms-retry-after-ms, then the dispatcher's default (30s unless configured).
//
// Operations are consumed through one of two shapes declared statically in a
// Descriptor:
//
//	desc := lro.Descriptor{Name: "ResourceGroups.CreateOrUpdate", Shape: lro.ShapeSingle, ExpectsBody: true}
//	op, err := lro.Begin[armresources.ResourceGroup](ctx, dispatcher, req, desc)
//	if err != nil {
//		return err
//	}
//	result, err := op.PollUntilDone(ctx)
//
// or, with Shape: lro.ShapeStreamed,
//
//	for update, err := range op.Updates(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(update.Status)
//	}
//
// Failed and Canceled are reported as statuses, not errors. Errors mean the
// engine was misused (ConfigError), the service broke the protocol
// (ProtocolError, UnexpectedStatusError) or the transport failed.
//
// ResumeToken and Resume move an in-flight operation between processes.
package lro
