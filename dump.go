package biokg

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/biokg/biokg/tabular"
)

// nodeColumns returns the sorted union of attribute keys over all nodes.
// The union over the whole set is what makes every row the same width; it
// is why node sets are materialized before any row is written.
func nodeColumns(nodes []Node) []string {
	seen := make(map[string]struct{})
	for _, n := range nodes {
		for k := range n.Data {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func relationColumns(rels []Relation) []string {
	seen := make(map[string]struct{})
	for _, r := range rels {
		for k := range r.Data {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// WriteNodes writes nodes (assumed already validated) as a gzip
// tab-delimited bulk file with header "id:ID :LABEL <sorted attribute
// keys...>" plus a sample file. Nodes are sorted by (NS, ID) in place first;
// missing attribute values render as empty cells so every row has the full
// column count.
func WriteNodes(nodes []Node, path, samplePath string) error {
	SortNodes(nodes)
	cols := nodeColumns(nodes)
	header := append([]string{"id:ID", ":LABEL"}, cols...)
	w, err := tabular.NewWriter(path, samplePath, header)
	if err != nil {
		return errors.Wrap(err, "opening node writer")
	}
	row := make([]string, len(header))
	for _, n := range nodes {
		row[0] = n.Key()
		row[1] = joinLabels(n.Labels)
		for i, col := range cols {
			row[i+2] = RenderValue(n.Data[col])
		}
		if err := w.Write(row); err != nil {
			w.Abort()
			return errors.Wrapf(err, "writing node %v", n)
		}
	}
	return errors.Wrap(w.Close(), "committing node file")
}

// WriteRelations is the relation counterpart of WriteNodes, with header
// ":START_ID :END_ID :TYPE <sorted attribute keys...>" and rows sorted by
// (source ns, source id, target ns, target id).
func WriteRelations(rels []Relation, path, samplePath string) error {
	SortRelations(rels)
	cols := relationColumns(rels)
	header := append([]string{":START_ID", ":END_ID", ":TYPE"}, cols...)
	w, err := tabular.NewWriter(path, samplePath, header)
	if err != nil {
		return errors.Wrap(err, "opening relation writer")
	}
	row := make([]string, len(header))
	for _, r := range rels {
		row[0] = NormID(r.SourceNS, r.SourceID)
		row[1] = NormID(r.TargetNS, r.TargetID)
		row[2] = r.RelType
		for i, col := range cols {
			row[i+3] = RenderValue(r.Data[col])
		}
		if err := w.Write(row); err != nil {
			w.Abort()
			return errors.Wrapf(err, "writing relation %v", r)
		}
	}
	return errors.Wrap(w.Close(), "committing relation file")
}

func joinLabels(labels []string) string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)
	return strings.Join(sorted, ";")
}

// Dumper runs a whole processor's extraction to disk: for each node type a
// validated, sorted gzip bulk file, a sample file, and a native snapshot for
// later assembly; plus the edge file. Record-level validation failures are
// skipped and counted; anything touching the disk is fatal.
type Dumper struct {
	Validator *Validator
	Log       Logger
	Stats     Statter
}

// NewDumper returns a Dumper filtering records through validator.
func NewDumper(validator *Validator, log Logger, stats Statter) *Dumper {
	if log == nil {
		log = NopLogger{}
	}
	if stats == nil {
		stats = NopStatter{}
	}
	return &Dumper{Validator: validator, Log: log, Stats: stats}
}

// DumpNodes extracts, validates, snapshots, and serializes one node type of
// p, returning the valid nodes so callers can feed them straight into
// assembly without re-reading the snapshot.
func (d *Dumper) DumpNodes(p Processor, paths Paths, nodeType string) ([]Node, error) {
	src, err := p.Nodes(nodeType)
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s nodes from %s", nodeType, p.Name())
	}
	filtered := d.Validator.FilterNodes(src)
	nodes, err := ReadAllNodes(filtered)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s nodes from %s", nodeType, p.Name())
	}
	SortNodes(nodes)

	if err := os.MkdirAll(paths.Dir(), 0755); err != nil {
		return nil, errors.Wrap(err, "making processor directory")
	}
	tsvPath, snapPath, samplePath := paths.Nodes(nodeType)
	snap, err := CreateSnapshot(snapPath)
	if err != nil {
		return nil, errors.Wrap(err, "creating node snapshot")
	}
	if err := snap.WriteNodes(nodes); err != nil {
		snap.Close()
		return nil, errors.Wrap(err, "writing node snapshot")
	}
	if err := snap.Close(); err != nil {
		return nil, errors.Wrap(err, "closing node snapshot")
	}

	if err := WriteNodes(nodes, tsvPath, samplePath); err != nil {
		return nil, errors.Wrapf(err, "dumping %s nodes of %s", nodeType, p.Name())
	}
	d.Stats.Count("nodes", int64(len(nodes)), 1, "processor:"+p.Name())
	d.Stats.Count("nodes-skipped", filtered.Skipped(), 1, "processor:"+p.Name())
	d.Log.Printf("%s: wrote %d %s nodes to %s", p.Name(), len(nodes), nodeType, tsvPath)
	return nodes, nil
}

// DumpEdges extracts, validates, and serializes all relations of p.
func (d *Dumper) DumpEdges(p Processor, paths Paths) error {
	src, err := p.Relations()
	if err != nil {
		return errors.Wrapf(err, "getting relations from %s", p.Name())
	}
	filtered := d.Validator.FilterRelations(src)
	rels, err := ReadAllRelations(filtered)
	if err != nil {
		return errors.Wrapf(err, "reading relations from %s", p.Name())
	}
	tsvPath, samplePath := paths.Edges()
	if err := WriteRelations(rels, tsvPath, samplePath); err != nil {
		return errors.Wrapf(err, "dumping edges of %s", p.Name())
	}
	d.Stats.Count("edges", int64(len(rels)), 1, "processor:"+p.Name())
	d.Stats.Count("edges-skipped", filtered.Skipped(), 1, "processor:"+p.Name())
	d.Log.Printf("%s: wrote %d relations to %s", p.Name(), len(rels), tsvPath)
	return nil
}

// Dump runs DumpNodes for every node type of p and then DumpEdges,
// returning the valid nodes by type.
func (d *Dumper) Dump(p Processor, paths Paths) (map[string][]Node, error) {
	nodesByType := make(map[string][]Node, len(p.NodeTypes()))
	for _, nodeType := range p.NodeTypes() {
		nodes, err := d.DumpNodes(p, paths, nodeType)
		if err != nil {
			return nil, err
		}
		nodesByType[nodeType] = nodes
	}
	if err := d.DumpEdges(p, paths); err != nil {
		return nil, err
	}
	return nodesByType, nil
}
