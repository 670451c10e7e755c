// Package transport defines the HTTP seam between the polling engine and the
// network: a minimal Request, a Response whose body can be read repeatedly, the
// Sender interface, and a RetrySender that absorbs transient failures.
//
// The engine depends only on Sender. Production code plugs in the Azure
// pipeline sender from package azure; tests plug in scripted senders.
package transport
