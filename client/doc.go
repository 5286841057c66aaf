// Package client is the Go side of a MoQ client running inside an opaque
// engine.
//
// Connect creates an engine reference and registers a CallbackContext with
// it. The engine reports status changes and the server setup through the
// Dispatcher, from whatever thread it likes; the context turns every
// callback into a non-blocking send on an events.Channel, and two pump
// goroutines per client apply them to the status model and to user hooks.
//
//	c, err := client.Connect(ctx, cfg, client.Options{Engine: eng})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.WaitReady(ctx); err != nil {
//	    return err
//	}
//	t, err := c.Publish(ctx, track.NewNamespace("chat", "room1"), nil)
//	...
//	err = c.Shutdown(ctx)
//
// Teardown order is fixed: tracks are unpublished, callbacks unregistered,
// the engine reference destroyed, then the callback context is destroyed and
// the pumps drain. Callbacks that still arrive with the old token resolve to
// nothing and are counted as boundary violations.
package client
