// Package space provides the space/source graph for Habitat Core.
//
// A Space is a named physical or logical grouping (a room, a floor zone).
// A Source is one entity exposed by one adapter, bound to exactly one space
// and one (adapter id, entity id) route. A Source exposes one or more
// properties, each with a role, optional mounting hint and a feature subset
// of the property domain's vocabulary.
//
// # Architecture
//
// The Registry is the single authoritative in-memory view of the graph,
// rebuilt wholesale from the Repository (SQLite) on load/reload. Besides the
// rebuild there are exactly two narrow mutations: SetAdapterReachability and
// ApplyEntityRegistrations. Everything else only reads.
//
// Lookups return zero values rather than errors; only the Property Engine
// interprets "not found" as an error condition.
//
// # Usage
//
//	repo := space.NewSQLiteRepository(db.DB)
//	registry := space.NewRegistry()
//	registry.SetLogger(log)
//
//	spaces, _ := repo.ListSpaces(ctx)
//	sources, _ := repo.ListSources(ctx)
//	props, _ := repo.ListSourceProperties(ctx)
//	registry.Load(spaces, sources, props)
//
//	route, ok := registry.GetSourceRoute("lr-light")
package space
