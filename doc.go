// Package quasar provides a columnar, self-describing event-data storage
// engine. Its core is the field engine: an object-to-columns mapper that
// translates structured in-memory values (primitives, records, arrays,
// variable-length collections, variants, optional references, bitsets) into
// one or more typed column streams, and reconstructs them on read.
//
// # Architecture
//
// Quasar is organized around four layers:
//
// 1. Fields (pkg/ntuple/field): a recursive schema tree with ownership and
// lifecycle rules. Leaves attach to physical columns; containers add offset,
// switch or presence columns and recurse over their children. Value handles
// carry single objects, bulk handles serve masked, repeatable reads over a
// cluster-local range.
//
// 2. Columns (pkg/ntuple/column): the typed element streams, their pack and
// unpack codecs (bit packing, byte-split encoding, delta-encoded index
// columns, half-precision floats) and the representation sets fields choose
// their encodings from.
//
// 3. Page store (pkg/ntuple/pagestore): supplies and consumes pages of packed
// column elements behind narrow sink and source interfaces; the in-memory
// implementation seals one page per column and cluster and compresses pages
// with zstd or lz4.
//
// 4. Type registry (pkg/ntuple/typereg): resolves type names to structural
// descriptions (struct members with offsets, enum underlying types,
// collection proxies) and keeps the schema-evolution read rules installed
// when fields connect to a page source.
//
// # Quick Start
//
// Write and read a flat schema:
//
//	import (
//	    "unsafe"
//
//	    "github.com/ajitpratap0/quasar/pkg/ntuple/field"
//	    "github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
//	)
//
//	root := field.NewRoot()
//	pt, _ := field.Create("pt", "float64")
//	root.Attach(pt)
//
//	store := pagestore.NewMemoryStore("demo")
//	sink := pagestore.NewMemorySink(store, pagestore.DefaultWriteOptions())
//	root.ConnectSink(sink, 0)
//
//	v := 2.5
//	pt.Append(unsafe.Pointer(&v))
//	root.CommitCluster()
//	sink.CommitCluster()
//	sink.CommitDataset()
package quasar
