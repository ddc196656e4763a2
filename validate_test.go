package biokg_test

import (
	"testing"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/test"
)

func TestRegexChecker(t *testing.T) {
	c := biokg.NewRegexChecker()
	tests := []struct {
		ns, id string
		exp    bool
	}{
		{"hgnc", "6871", true},
		{"HGNC", "6871", true},
		{"hgnc", "HGNC:6871", false},
		{"ip", "IPR000001", true},
		{"ip", "IPR01", false},
		{"go", "GO:0003677", true},
		{"go", "0003677", false},
		{"uniprot", "P04637", true},
		{"pubmed", "12345", true},
		{"chebi", "CHEBI:27732", true},
		{"mesh", "D012345", true},
		{"nosuchns", "12345", false},
	}
	for _, tst := range tests {
		if got := c.Valid(tst.ns, tst.id); got != tst.exp {
			t.Errorf("Valid(%q, %q): got %v, expected %v", tst.ns, tst.id, got, tst.exp)
		}
	}
}

func TestRegexCheckerAdd(t *testing.T) {
	c := biokg.NewRegexChecker()
	err := c.Add("doid", `^DOID:\d+$`)
	test.ErrNil(t, err, "adding doid pattern")
	test.MustBe(t, c.Valid("DOID", "DOID:14330"), true, "added namespace")

	err = c.Add("broken", `[`)
	if err == nil {
		t.Fatal("expected error compiling bad pattern")
	}
}

func TestValidatorEvidenceExempt(t *testing.T) {
	v := biokg.NewValidator(biokg.NewRegexChecker(), nil)
	err := v.CheckNode(biokg.NewNode(biokg.EvidenceNS, "0", []string{"Evidence"}, nil))
	test.ErrNil(t, err, "evidence node")

	// exemption applies per endpoint, the other endpoint is still checked
	err = v.CheckRelation(biokg.NewRelation("hgnc", "6871", biokg.EvidenceNS, "0", "has_evidence"))
	test.ErrNil(t, err, "relation into evidence")
	err = v.CheckRelation(biokg.NewRelation("hgnc", "bogus", biokg.EvidenceNS, "0", "has_evidence"))
	if err == nil {
		t.Fatal("expected bad source endpoint to fail despite evidence target")
	}
}

func TestFilterNodes(t *testing.T) {
	v := biokg.NewValidator(biokg.NewRegexChecker(), nil)
	src := v.FilterNodes(biokg.NodesOf(
		biokg.NewNode("hgnc", "1", []string{"BioEntity"}, nil),
		biokg.NewNode("hgnc", "notanumber", []string{"BioEntity"}, nil),
		biokg.NewNode("hgnc", "2", []string{"BioEntity"}, nil),
		biokg.NewNode("unknown", "x", []string{"BioEntity"}, nil),
	))
	nodes, err := biokg.ReadAllNodes(src)
	test.ErrNil(t, err, "draining filtered source")
	test.MustBe(t, len(nodes), 2, "surviving nodes")
	test.MustBe(t, nodes[0].ID, "1", "first survivor")
	test.MustBe(t, nodes[1].ID, "2", "second survivor")
	test.MustBe(t, src.Skipped(), int64(2), "stream skip count")
	test.MustBe(t, v.Skipped(), int64(2), "validator total")
}

func TestFilterCountsPerStream(t *testing.T) {
	v := biokg.NewValidator(biokg.NewRegexChecker(), nil)
	a := v.FilterNodes(biokg.NodesOf(
		biokg.NewNode("hgnc", "bad", nil, nil),
	))
	b := v.FilterNodes(biokg.NodesOf(
		biokg.NewNode("hgnc", "1", nil, nil),
		biokg.NewNode("hgnc", "also bad", nil, nil),
		biokg.NewNode("hgnc", "worse", nil, nil),
	))
	_, err := biokg.ReadAllNodes(a)
	test.ErrNil(t, err, "draining a")
	_, err = biokg.ReadAllNodes(b)
	test.ErrNil(t, err, "draining b")
	test.MustBe(t, a.Skipped(), int64(1), "first stream")
	test.MustBe(t, b.Skipped(), int64(2), "second stream")
	test.MustBe(t, v.Skipped(), int64(3), "shared total")
}

func TestFilterRelations(t *testing.T) {
	v := biokg.NewValidator(biokg.NewRegexChecker(), nil)
	src := v.FilterRelations(biokg.RelationsOf(
		biokg.NewRelation("hgnc", "1", "go", "GO:0003677", "associated_with"),
		biokg.NewRelation("hgnc", "1", "go", "3677", "associated_with"),
		biokg.NewRelation("bogus", "1", "go", "GO:0003677", "associated_with"),
	))
	rels, err := biokg.ReadAllRelations(src)
	test.ErrNil(t, err, "draining filtered source")
	test.MustBe(t, len(rels), 1, "surviving relations")
	test.MustBe(t, v.Skipped(), int64(2), "skip count")
}
