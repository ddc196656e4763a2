package biokg

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
)

// NodeSource is the interface for lazily getting nodes one at a time. Node
// returns io.EOF after the last node. A NodeSource is a single pass over
// upstream state and is not guaranteed restartable - ask the Processor for a
// fresh one instead of calling Node past io.EOF.
type NodeSource interface {
	Node() (Node, error)
}

// RelationSource is the single pass equivalent of NodeSource for relations.
type RelationSource interface {
	Relation() (Relation, error)
}

// Processor is the contract every upstream database wrapper implements.
// Processors must not fail on malformed individual records - those are
// surfaced as invalid Node/Relation values which the validator filters.
// Errors from Nodes and Relations are reserved for unrecoverable conditions
// such as a missing source file, reported as SourceUnavailableError.
type Processor interface {
	// Name identifies the processor; it becomes the directory name for all
	// of its output files.
	Name() string

	// NodeTypes lists the node type tags this processor can produce. Most
	// processors produce exactly one.
	NodeTypes() []string

	// Importable reports whether this processor's output participates in
	// bulk import at all. Display-only auxiliary sources return false.
	Importable() bool

	// Nodes returns a fresh pass over the nodes of the given type.
	Nodes(nodeType string) (NodeSource, error)

	// Relations returns a fresh pass over all relations.
	Relations() (RelationSource, error)
}

// NodeSlice adapts an in-memory slice to the NodeSource contract.
type NodeSlice struct {
	nodes []Node
	i     int
}

// NodesOf returns a NodeSource reading from the given slice.
func NodesOf(nodes ...Node) *NodeSlice {
	return &NodeSlice{nodes: nodes}
}

// Node implements NodeSource.
func (s *NodeSlice) Node() (Node, error) {
	if s.i >= len(s.nodes) {
		return Node{}, io.EOF
	}
	n := s.nodes[s.i]
	s.i++
	return n, nil
}

// RelationSlice adapts an in-memory slice to the RelationSource contract.
type RelationSlice struct {
	rels []Relation
	i    int
}

// RelationsOf returns a RelationSource reading from the given slice.
func RelationsOf(rels ...Relation) *RelationSlice {
	return &RelationSlice{rels: rels}
}

// Relation implements RelationSource.
func (s *RelationSlice) Relation() (Relation, error) {
	if s.i >= len(s.rels) {
		return Relation{}, io.EOF
	}
	r := s.rels[s.i]
	s.i++
	return r, nil
}

// ReadAllNodes drains src into a slice. The source is spent afterward.
func ReadAllNodes(src NodeSource) ([]Node, error) {
	var nodes []Node
	for {
		n, err := src.Node()
		if err == io.EOF {
			return nodes, nil
		}
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, n)
	}
}

// ReadAllRelations drains src into a slice.
func ReadAllRelations(src RelationSource) ([]Relation, error) {
	var rels []Relation
	for {
		r, err := src.Relation()
		if err == io.EOF {
			return rels, nil
		}
		if err != nil {
			return rels, err
		}
		rels = append(rels, r)
	}
}

// SourceUnavailableError reports that a resource a processor depends on
// (file, bucket, URL) is missing. The orchestrator treats it specially: with
// skip-failed enabled the processor is dropped from the manifest, otherwise
// the whole run aborts.
type SourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source data unavailable: %s: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("source data unavailable: %s", e.Resource)
}

// SourceUnavailable wraps err as a SourceUnavailableError for resource.
func SourceUnavailable(resource string, err error) error {
	return &SourceUnavailableError{Resource: resource, Err: err}
}

// IsSourceUnavailable reports whether err (or its cause chain) is a
// SourceUnavailableError.
func IsSourceUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*SourceUnavailableError)
	return ok
}

// ProcessorSpec describes a processor to the orchestrator without
// constructing it. Construction is deferred because it may be expensive
// (network fetches) or fail with SourceUnavailableError, and is skipped
// entirely when the processor's outputs already exist on disk.
type ProcessorSpec struct {
	Name       string
	NodeTypes  []string
	Importable bool
	New        func() (Processor, error)
}

// Paths computes the on-disk layout of one processor's output files under a
// data directory. Every processor gets its own subdirectory holding the
// tabular node file(s), the native node snapshot(s) the assembler re-reads,
// the tabular edge file, and uncompressed sample files.
type Paths struct {
	dir       string
	nodeTypes []string
}

// NewPaths returns the Paths for the named processor under datadir.
func NewPaths(datadir, name string, nodeTypes []string) Paths {
	return Paths{dir: filepath.Join(datadir, name), nodeTypes: nodeTypes}
}

// Dir returns the processor's output directory.
func (p Paths) Dir() string { return p.dir }

// Nodes returns the gzip tabular file, native snapshot, and sample file
// locations for one node type. Processors producing a single node type get
// unsuffixed names; multi-type processors get the type embedded in each name.
func (p Paths) Nodes(nodeType string) (tsvPath, snapPath, samplePath string) {
	if len(p.nodeTypes) > 1 {
		return filepath.Join(p.dir, "nodes_"+nodeType+".tsv.gz"),
			filepath.Join(p.dir, "nodes_"+nodeType+".snap"),
			filepath.Join(p.dir, "nodes_"+nodeType+"_sample.tsv")
	}
	return filepath.Join(p.dir, "nodes.tsv.gz"),
		filepath.Join(p.dir, "nodes.snap"),
		filepath.Join(p.dir, "nodes_sample.tsv")
}

// Edges returns the gzip tabular edge file and its sample file locations.
// Relations are not reassembled, so there is no snapshot.
func (p Paths) Edges() (tsvPath, samplePath string) {
	return filepath.Join(p.dir, "edges.tsv.gz"), filepath.Join(p.dir, "edges_sample.tsv")
}

// AssembledPath returns the final location of the cross-source assembled node
// file for a node type under datadir.
func AssembledPath(datadir, nodeType string) string {
	return filepath.Join(datadir, "assembled", "nodes_"+nodeType+".tsv.gz")
}
