// Package vectorstore provides the vector table that backs knowledge retrieval.
//
// A table stores rows of chunk text, an embedding vector and flat string
// metadata. Two providers implement the Table interface:
//
//   - chromem (default): embedded chromem-go database persisted to a local
//     directory, optionally gzip-compressed. No external services.
//   - qdrant: external Qdrant server over native gRPC with retries and a
//     circuit breaker.
//
// # Filters
//
// Every read, scan and delete accepts a Filter, a map of metadata key to
// value combined with logical AND:
//
//	f := vectorstore.Filter{"project": "kak_tor", "tahun": 2025}
//	f.Expression() // metadata.project = 'kak_tor' AND metadata.tahun = 2025
//
// Values are compared in their canonical string form, so the JSON number
// 2025 matches a row stored with tahun "2025".
//
// # Usage
//
//	table, err := vectorstore.NewTable(cfg.VectorStore, embedder.Dimension(), logger)
//	if err != nil {
//	    return err
//	}
//	defer table.Close()
//
//	ids, err := table.Add(ctx, rows)
//	matches, err := table.Search(ctx, queryVector, 5, vectorstore.Filter{"project": "kak_tor"})
package vectorstore
