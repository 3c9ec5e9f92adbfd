// Package ca reads EPICS process variables through a Channel Access bus and
// returns strongly typed results.
//
// A Channel is a named connection whose state is driven by the bus's
// connection callbacks. The Read functions issue one request on a channel
// and wait for its callback:
//
//	ch, err := ca.NewChannel(bus, "SR:DCCT", logger)
//	...
//	v, err := ca.ReadTimed[float64](ctx, ch)
//	fmt.Println(v.Value, v.Severity, v.Timestamp)
//
// The Client keeps a pool of channels per process variable and offers the
// same shapes by name through the Get functions:
//
//	client, err := ca.NewClient(ca.Config{Bus: bus})
//	wave, err := ca.GetVector[int32](ctx, client, "SR:BPM:X")
//
// Callbacks run on goroutines owned by the bus. They are matched to their
// requests through integer tokens, never pointers, so a callback that
// arrives after its request was abandoned is recognised and dropped.
package ca
