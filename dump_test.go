package biokg_test

import (
	"bytes"
	"compress/gzip"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/test"
)

// fakeProcessor serves in-memory nodes and relations, optionally split over
// several node types.
type fakeProcessor struct {
	name        string
	nodesByType map[string][]biokg.Node
	rels        []biokg.Relation
}

func (f *fakeProcessor) Name() string { return f.name }

func (f *fakeProcessor) NodeTypes() []string {
	types := make([]string, 0, len(f.nodesByType))
	for t := range f.nodesByType {
		types = append(types, t)
	}
	if len(types) > 1 {
		// fixed order keeps the tests deterministic
		if types[0] > types[1] {
			types[0], types[1] = types[1], types[0]
		}
	}
	return types
}

func (f *fakeProcessor) Importable() bool { return true }

func (f *fakeProcessor) Nodes(nodeType string) (biokg.NodeSource, error) {
	return biokg.NodesOf(f.nodesByType[nodeType]...), nil
}

func (f *fakeProcessor) Relations() (biokg.RelationSource, error) {
	return biokg.RelationsOf(f.rels...), nil
}

func readGzTSV(t *testing.T, path string) [][]string {
	raw, err := ioutil.ReadFile(path)
	test.ErrNil(t, err, "reading "+path)
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	test.ErrNil(t, err, "ungzipping "+path)
	content, err := ioutil.ReadAll(gz)
	test.ErrNil(t, err, "decompressing "+path)
	var rows [][]string
	for _, line := range strings.Split(strings.TrimRight(string(content), "\n"), "\n") {
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

func TestWriteNodesSchema(t *testing.T) {
	dir, err := ioutil.TempDir("", "dump")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	nodes := []biokg.Node{
		biokg.NewNode("hgnc", "2", []string{"Gene", "BioEntity"}, map[string]interface{}{"name": "B", "year:int": 1999}),
		biokg.NewNode("hgnc", "1", []string{"BioEntity"}, map[string]interface{}{"name": "A"}),
	}
	path := filepath.Join(dir, "nodes.tsv.gz")
	sample := filepath.Join(dir, "nodes_sample.tsv")
	err = biokg.WriteNodes(nodes, path, sample)
	test.ErrNil(t, err, "writing nodes")

	rows := readGzTSV(t, path)
	test.MustBe(t, rows[0], []string{"id:ID", ":LABEL", "name", "year:int"}, "header")
	test.MustBe(t, rows[1], []string{"hgnc:1", "BioEntity", "A", ""}, "first row has empty cell for missing attr")
	test.MustBe(t, rows[2], []string{"hgnc:2", "BioEntity;Gene", "B", "1999"}, "second row, labels sorted and joined")

	sampleContent, err := ioutil.ReadFile(sample)
	test.ErrNil(t, err, "reading sample")
	sampleLines := strings.Split(strings.TrimRight(string(sampleContent), "\n"), "\n")
	test.MustBe(t, len(sampleLines), 3, "sample holds header plus both rows")
}

func TestWriteNodesSampleCap(t *testing.T) {
	dir, err := ioutil.TempDir("", "dump")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	var nodes []biokg.Node
	for i := 0; i < 25; i++ {
		nodes = append(nodes, biokg.NewNode("hgnc", strings.Repeat("1", i+1), []string{"BioEntity"}, nil))
	}
	path := filepath.Join(dir, "nodes.tsv.gz")
	sample := filepath.Join(dir, "nodes_sample.tsv")
	err = biokg.WriteNodes(nodes, path, sample)
	test.ErrNil(t, err, "writing nodes")

	test.MustBe(t, len(readGzTSV(t, path)), 26, "bulk file holds all rows")
	sampleContent, err := ioutil.ReadFile(sample)
	test.ErrNil(t, err, "reading sample")
	sampleLines := strings.Split(strings.TrimRight(string(sampleContent), "\n"), "\n")
	test.MustBe(t, len(sampleLines), 11, "sample capped at header plus ten rows")
}

func TestWriteNodesDeterministic(t *testing.T) {
	dir, err := ioutil.TempDir("", "dump")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	write := func(name string) []byte {
		nodes := []biokg.Node{
			biokg.NewNode("hgnc", "2", []string{"BioEntity"}, map[string]interface{}{"b": "2", "a": "1"}),
			biokg.NewNode("hgnc", "1", []string{"BioEntity"}, map[string]interface{}{"a": "1"}),
			biokg.NewNode("go", "GO:0000001", []string{"BioEntity"}, nil),
		}
		path := filepath.Join(dir, name)
		test.ErrNil(t, biokg.WriteNodes(nodes, path, ""), "writing "+name)
		raw, err := ioutil.ReadFile(path)
		test.ErrNil(t, err, "reading "+name)
		return raw
	}
	test.MustBe(t, write("a.tsv.gz"), write("b.tsv.gz"), "byte-identical reruns")
}

func TestWriteRelationsSchema(t *testing.T) {
	dir, err := ioutil.TempDir("", "dump")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	rels := []biokg.Relation{
		biokg.NewRelation("ip", "IPR000002", "ip", "IPR000001", "isa"),
	}
	rels[0].Data = map[string]interface{}{"version": "90.0"}
	r2 := biokg.NewRelation("hgnc", "1", "ip", "IPR000001", "has_domain")
	r2.Data = map[string]interface{}{"start:int": 10, "end:int": 50}
	rels = append(rels, r2)

	path := filepath.Join(dir, "edges.tsv.gz")
	err = biokg.WriteRelations(rels, path, "")
	test.ErrNil(t, err, "writing relations")

	rows := readGzTSV(t, path)
	test.MustBe(t, rows[0], []string{":START_ID", ":END_ID", ":TYPE", "end:int", "start:int", "version"}, "header")
	test.MustBe(t, rows[1], []string{"hgnc:1", "ip:IPR000001", "has_domain", "50", "10", ""}, "sorted first")
	test.MustBe(t, rows[2], []string{"ip:IPR000002", "ip:IPR000001", "isa", "", "", "90.0"}, "sorted second")
}

func TestDumperDump(t *testing.T) {
	dir, err := ioutil.TempDir("", "dump")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	p := &fakeProcessor{
		name: "fake",
		nodesByType: map[string][]biokg.Node{
			"BioEntity": {
				biokg.NewNode("hgnc", "1", []string{"BioEntity"}, map[string]interface{}{"name": "A"}),
				biokg.NewNode("hgnc", "oops", []string{"BioEntity"}, nil),
			},
		},
		rels: []biokg.Relation{
			biokg.NewRelation("hgnc", "1", "go", "GO:0000001", "associated_with"),
			biokg.NewRelation("hgnc", "1", "go", "nope", "associated_with"),
		},
	}
	validator := biokg.NewValidator(biokg.NewRegexChecker(), nil)
	dumper := biokg.NewDumper(validator, nil, nil)
	paths := biokg.NewPaths(dir, p.Name(), p.NodeTypes())
	nodesByType, err := dumper.Dump(p, paths)
	test.ErrNil(t, err, "dumping")

	test.MustBe(t, len(nodesByType["BioEntity"]), 1, "invalid node dropped")
	test.MustBe(t, validator.Skipped(), int64(2), "total skipped")

	tsvPath, snapPath, samplePath := paths.Nodes("BioEntity")
	test.MustBe(t, len(readGzTSV(t, tsvPath)), 2, "node rows plus header")
	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("missing snapshot: %v", err)
	}
	if _, err := os.Stat(samplePath); err != nil {
		t.Fatalf("missing sample: %v", err)
	}
	edgesPath, _ := paths.Edges()
	test.MustBe(t, len(readGzTSV(t, edgesPath)), 2, "edge rows plus header")
}
