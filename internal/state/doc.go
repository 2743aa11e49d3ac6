// Package state owns the device snapshot: reading it from a key-value tree,
// normalising whatever is stored into strict booleans, and writing it back.
//
// # Storage layout
//
// A snapshot is persisted twice:
//
//	states: {"led1": true, "led2": false}   structured path (authoritative)
//	led1:   true                            legacy flat keys, one per device
//	led2:   false
//
// Reads prefer the structured path. When it is absent the legacy keys are
// read instead and the structured path is written once from them, so older
// deployments migrate on first use. Writes always update both layouts.
//
// # Trees
//
// The Tree interface is the only thing the Store needs from a backend:
// point reads with an existence flag, and point writes. Backends that also
// implement MultiPathWriter get a single atomic write covering both layouts;
// otherwise the paths are written in parallel and a failure may leave the
// layouts disagreeing until the next successful write.
//
// Implementations in this module:
//   - firebase.Client: Firebase Realtime Database REST API
//   - SQLiteTree: a kv_tree table in the local SQLite database
//   - MemoryTree: in-process map, for development and tests
//
// # Concurrency
//
// Store holds no locks around read-modify-write sequences. Two callers that
// read the same snapshot and both write a change will race, and the later
// write wins.
package state
