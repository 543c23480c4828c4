// Package store owns knowledge entity persistence and the in-memory mirror
// the search path reads from.
//
// # Layout
//
// A Driver persists rows (entities, relationships, interactions). Two drivers
// ship here: Postgres (database/sql + lib/pq, with pgvector operators when
// the extension is available and in-process scoring otherwise) and Badger
// (embedded, also usable fully in-memory for tests).
//
// Above the driver, Store maintains a dense slab of entities with an
// id-to-index map and domain/type/tag inverted indexes holding slab indices.
// Every mutation updates slab and indexes synchronously with the driver
// write, so readers never observe an index that lags the store. The slab is
// write-through and load-through: entities enter on store or first read and
// leave only on delete or expiry.
//
// # Error model
//
// Drivers translate backend failures into the package sentinels ErrNotFound,
// ErrConnection, and ErrSerialization. Read paths above the store degrade to
// empty results on ErrConnection; write paths surface the error so callers
// can retry.
package store
