// Package facevec stores face embeddings in SQLite and answers exact
// nearest-neighbor queries over them.
//
// Records (a name, a few descriptive attributes and a fixed-length float32
// embedding) are kept in a single SQLite file through the pure Go
// modernc.org/sqlite driver, so no CGO is required. Searches run against an
// immutable in-memory snapshot built by scanning the store; the snapshot is
// replaced atomically by Rebuild and is never updated in place.
//
// # Quick Start
//
//	db, err := facevec.Open(ctx, facevec.DefaultConfig("faces.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	id, err := db.Add(ctx, &facevec.Face{Name: "alice", Embedding: embedding})
//
//	// Writes become searchable after a rebuild
//	if _, err := db.Rebuild(ctx); err != nil {
//	    return err
//	}
//
//	matches, found, err := db.QueryByName(ctx, "alice", 2)
//
// # Distances
//
// Match.Distance is the squared Euclidean distance. Use Match.L2 for the
// Euclidean distance; both give the same ranking. Ties are broken by slot,
// and slots follow ascending record ID.
//
// # Names
//
// Names are not unique. Get and QueryByName use the record with the lowest ID,
// and DeleteByName removes every record with the name.
package facevec
