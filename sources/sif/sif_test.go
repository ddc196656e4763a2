package sif_test

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/sources/sif"
	"github.com/biokg/biokg/test"
)

const dump = "agA_ns\tagA_id\tagA_name\tagB_ns\tagB_id\tagB_name\tstmt_type\tevidence_count\tstmt_hash\tbelief\n" +
	"HGNC\t6871\tMAPK1\tHGNC\t6877\tMAPK8\tPhosphorylation\t12\t-123456789\t0.95\n" +
	"HGNC\t6871\tMAPK1\tCHEBI\tCHEBI:27732\tcaffeine\tInhibition\t3\t987654321\t0.6\n"

func writeDump(t *testing.T) (dir, path string) {
	dir, err := ioutil.TempDir("", "sif")
	test.ErrNil(t, err, "temp dir")
	path = test.MustWriteFile(t, dir, "statements.tsv", dump)
	return dir, path
}

func TestProcessorAgents(t *testing.T) {
	dir, path := writeDump(t)
	defer os.RemoveAll(dir)

	p, err := sif.NewProcessor(sif.Config{Path: path, Version: "2026-08"})
	test.ErrNil(t, err, "constructing")
	test.MustBe(t, p.NodeTypes(), []string{"BioEntity", "Evidence"}, "node types")

	src, err := p.Nodes("BioEntity")
	test.ErrNil(t, err, "getting agents")
	nodes, err := biokg.ReadAllNodes(src)
	test.ErrNil(t, err, "reading agents")

	// MAPK1 appears in both rows but is only emitted once
	test.MustBe(t, len(nodes), 3, "agent count")
	test.MustBe(t, nodes[0].Key(), "hgnc:6871", "first agent")
	test.MustBe(t, nodes[0].Data["name"], "MAPK1", "agent name")
	test.MustBe(t, nodes[0].Data["version"], "2026-08", "agent version")
}

func TestProcessorEvidence(t *testing.T) {
	dir, path := writeDump(t)
	defer os.RemoveAll(dir)

	p, err := sif.NewProcessor(sif.Config{Path: path})
	test.ErrNil(t, err, "constructing")

	src, err := p.Nodes("Evidence")
	test.ErrNil(t, err, "getting evidence")
	nodes, err := biokg.ReadAllNodes(src)
	test.ErrNil(t, err, "reading evidence")

	test.MustBe(t, len(nodes), 2, "one evidence node per row")
	test.MustBe(t, nodes[0].NS, biokg.EvidenceNS, "evidence namespace")
	test.MustBe(t, nodes[0].ID, "0", "first minted id")
	test.MustBe(t, nodes[1].ID, "1", "second minted id")
	test.MustBe(t, nodes[0].Data["stmt_hash:long"], int64(-123456789), "stmt hash")
	test.MustBe(t, nodes[0].Data["stmt_type"], "Phosphorylation", "stmt type")
}

func TestProcessorRelations(t *testing.T) {
	dir, path := writeDump(t)
	defer os.RemoveAll(dir)

	p, err := sif.NewProcessor(sif.Config{Path: path})
	test.ErrNil(t, err, "constructing")

	src, err := p.Relations()
	test.ErrNil(t, err, "getting relations")
	rels, err := biokg.ReadAllRelations(src)
	test.ErrNil(t, err, "reading relations")

	// each row yields its statement edge plus a has_evidence edge
	test.MustBe(t, len(rels), 4, "relation count")
	test.MustBe(t, rels[0].RelType, "Phosphorylation", "statement type")
	test.MustBe(t, rels[0].Data["evidence_count:long"], int64(12), "evidence count")
	test.MustBe(t, rels[0].Data["stmt_hash:long"], int64(-123456789), "stmt hash")
	test.MustBe(t, rels[0].Data["belief:float"], 0.95, "belief")
	test.MustBe(t, rels[1].RelType, "has_evidence", "provenance edge")
	test.MustBe(t, rels[1].TargetNS, biokg.EvidenceNS, "provenance target ns")
	test.MustBe(t, rels[1].TargetID, "0", "provenance target id")
	test.MustBe(t, rels[3].TargetID, "1", "second provenance target")
}

func TestProcessorSkipsMalformedRows(t *testing.T) {
	dir, err := ioutil.TempDir("", "sif")
	test.ErrNil(t, err, "temp dir")
	defer os.RemoveAll(dir)

	corrupt := "agA_ns\tagA_id\tagA_name\tagB_ns\tagB_id\tagB_name\tstmt_type\tevidence_count\tstmt_hash\tbelief\n" +
		"HGNC\t6871\tMAPK1\tHGNC\t6877\tMAPK8\tPhosphorylation\tnotanumber\t-123456789\t0.95\n" +
		"HGNC\t6871\tMAPK1\tHGNC\t6877\tMAPK8\tActivation\t4\t\t0.8\n" +
		"HGNC\t6871\tMAPK1\tCHEBI\tCHEBI:27732\tcaffeine\tInhibition\t3\t987654321\t0.6\n"
	path := test.MustWriteFile(t, dir, "statements.tsv", corrupt)

	p, err := sif.NewProcessor(sif.Config{Path: path})
	test.ErrNil(t, err, "constructing over corrupt rows")
	test.MustBe(t, p.Skipped(), int64(2), "both bad rows dropped")

	src, err := p.Relations()
	test.ErrNil(t, err, "getting relations")
	rels, err := biokg.ReadAllRelations(src)
	test.ErrNil(t, err, "reading relations")
	test.MustBe(t, len(rels), 2, "only the good row's edges remain")
	test.MustBe(t, rels[0].RelType, "Inhibition", "surviving statement")
	// evidence ids are minted only for surviving rows
	test.MustBe(t, rels[1].TargetID, "0", "first minted id")
}

func TestProcessorMissingDump(t *testing.T) {
	_, err := sif.NewProcessor(sif.Config{Path: "/no/such/dump.tsv.gz"})
	if err == nil {
		t.Fatal("expected error for missing dump")
	}
	test.MustBe(t, biokg.IsSourceUnavailable(err), true, "source unavailable")
}
