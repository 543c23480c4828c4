// Package search ranks knowledge entities against semantic queries.
//
// Engine is the vector path: it embeds query text when needed, scores
// candidates under the query's similarity metric, and returns a
// deterministically ordered result list. When the storage driver exposes a
// native vector index the engine delegates ranking to it and hydrates the
// ids; otherwise it scores the store's in-memory candidate set.
//
// Hybrid combines the vector ranking with a keyword ranking under fixed
// weights. Search never returns an error: failures are logged and degrade to
// an empty result list, so a flaky backend cannot take the query path down.
package search
