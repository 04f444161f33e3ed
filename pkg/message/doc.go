// Package message defines the records that flow into and out of a rotating writer.
//
// # Write Messages
//
// A WriteMessage pairs the data to persist with an opaque passthrough:
//
//	msg := message.WithPassthrough([]byte("payload"), offset)
//
// The passthrough never reaches storage. It is returned, in order, inside the
// RotationMessage of the file the data ended up in.
//
// # Rotation Messages
//
// A RotationMessage is emitted when a file is closed:
//
//	rot := message.RotationMessage[int64]{
//	    Path:         "events/00000003.log",
//	    Rotation:     3,
//	    Passthroughs: []int64{40, 41, 42},
//	}
//	last, ok := rot.Last() // 42, true
//
// Concatenating the passthroughs of every rotation of a run yields the input
// passthroughs in their original order.
//
// # Keyed Records
//
// Keyed-record handles persist KeyValue pairs:
//
//	kv := message.NewKeyValue("user-1", `{"name":"a"}`)
//
// # Kafka Positions
//
// The Kafka pipeline uses Position as its passthrough so that offsets are
// committed only after the file containing them has been closed.
package message
