// Package biokg is a toolkit for building a biological knowledge graph from
// heterogeneous upstream databases. Each upstream database is wrapped in a
// Processor which lazily produces typed nodes and relations; the pipeline
// validates their identifiers, merges nodes which describe the same entity
// across sources, and writes deterministic gzip tab-delimited files ready for
// bulk loading with neo4j-admin import.
package biokg
