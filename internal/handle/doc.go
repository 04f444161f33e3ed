// Package handle implements the storage handle variants used by rotating writers.
//
// Every handle owns exactly one storage.Sink and reports, for each Append,
// how many bytes the file grew by. Sync flushes buffered data to the sink
// and Close releases it; a second Close is a no-op.
//
// # Variants
//
//   - Raw: payload bytes written verbatim, optionally newline separated
//   - Compressed: payload bytes streamed through a codec, flushed per append
//     so the reported size is the exact compressed growth
//   - Avro: key/value records in an Avro Object Container File
//   - Parquet: key/value records in a Parquet file, one row group per Sync
//
// # Openers
//
// Handles are created per file through storage.Opener functions bound to a
// storage.Backend:
//
//	open := handle.CompressedOpener(backend, gzipCodec, true)
//	h, err := open(ctx, "topic/dt=2025-01-01/pid=0/events_000000.gz")
package handle
