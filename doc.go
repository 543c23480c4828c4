// Package vectorkb is a vector knowledge base engine for compliance
// platforms: embedded semantic storage, similarity and hybrid search, a
// typed relationship graph, retention-tiered memory lifecycle, and a
// learning feedback loop that tunes entity confidence from usage.
//
// The Engine composes injected parts: a storage Driver (Postgres with
// pgvector, or embedded Badger), an embedding Client (deterministic
// feature-hash fallback, or OpenAI), and managers for search, graph,
// lifecycle, and learning. Construct one with NewEngine and keep it for the
// process lifetime; all methods are safe for concurrent use.
//
//	driver, _ := store.NewBadgerDriver(store.BadgerConfig{InMemory: true}, logger)
//	emb := embedder.NewHashClient(384)
//	kb, _ := vectorkb.NewEngine(driver, emb, nil, logger)
//	_ = kb.Initialize(ctx)
//
//	kb.StoreEntity(ctx, &types.KnowledgeEntity{
//		Domain:        types.DomainRegulatoryCompliance,
//		KnowledgeType: types.TypeRule,
//		Title:         "MiFID II best execution",
//		Content:       "Investment firms must take all sufficient steps...",
//	})
//	results := kb.Search(ctx, types.SemanticQuery{Text: "best execution obligations"})
package vectorkb
