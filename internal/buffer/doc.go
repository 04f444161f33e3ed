// Package buffer accumulates the passthroughs of the file a writer is filling.
//
// A Pending buffer records, in arrival order, the passthrough of every
// element appended to the current file together with the file statistics
// carried by the rotation message:
//
//	pending := buffer.NewPending[message.Position]()
//	pending.Add(pos, bytesWritten, time.Now())
//
//	// on rotation
//	passthroughs, stats := pending.Drain()
//
// Drain hands the slice to the caller and starts a fresh one, so a drained
// slice is never modified by later Adds.
//
// # Thread Safety
//
// A Pending buffer belongs to one writer and is not safe for concurrent use.
package buffer
