// Package columnar provides the array operations histfill needs on top of
// Apache Arrow: column lookup with struct projection, flattening of nested
// lists into flat fill values, broadcasting of per-event weights, and list
// multiplicities.
//
// # Event collections
//
// An event collection is an arrow.Record with one row per event. Columns
// may be scalars (one value per event) or lists of any depth (a variable
// number of objects per event). Lists of structs are addressed with dotted
// paths:
//
//	// schema: muon: list<struct<pt: float64, eta: float64>>
//	pt, err := columnar.Column(rec, "muon.pt") // list<float64>
//	defer pt.Release()
//
// # Flattening and broadcasting
//
// Flatten removes every level of nesting and drops nulls:
//
//	vals, err := columnar.Flatten(pt) // hist.Float64s, one value per muon
//
// Broadcast repeats one weight per event over the entries of a nested
// array, so that weights line up with the flattened values:
//
//	w, err := columnar.Broadcast(evtWeights, pt)
//
// Every array returned by this package must be released by the caller.
package columnar
