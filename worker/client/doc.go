// Package client is the calling side of the worker protocol. It encodes
// requests, hands them to a host and decodes the responses.
//
// The transport is a plain function, so the same client drives a host in
// the same process or one behind a connection:
//
//	h := host.New(host.Config{Worker: w})
//	c := client.New(h.HandleRequest)
//	id, err := c.Open(ctx, "test.db", false)
//
// Errors reported by the host are returned as *types.RemoteError, which
// matches the worker's sentinel errors with errors.Is:
//
//	if errors.Is(err, worker.ErrInvalidState) {
//		// ...
//	}
package client
