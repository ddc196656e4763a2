// Package interpro wraps a local copy of the InterPro release files (entry
// list, short names, parent/child tree, GO mapping, and the human subset of
// the protein membership table) as a biokg.Processor producing protein
// domain entities and their relations.
package interpro

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/leveldb"
	"github.com/biokg/biokg/tabular"
)

// File names expected under Config.Dir, mirroring the upstream release
// layout at ftp.ebi.ac.uk/pub/databases/interpro/current_release/.
const (
	EntriesFile  = "entry.list"
	ShortFile    = "short_names.dat"
	TreeFile     = "ParentChildTreeFile.txt"
	GoFile       = "interpro2go"
	ProteinsFile = "protein2ipr_human.tsv"
	XrefFile     = "uniprot2hgnc.tsv"
)

const uniprotHgnc = "uniprot-hgnc"

// Config holds the construction parameters for the InterPro processor.
type Config struct {
	// Dir is the directory holding the release files named above.
	Dir string
	// XrefDir is where the uniprot-to-hgnc leveldb cache lives; defaults
	// to Dir/xrefs.
	XrefDir string
	// Version tags every entry node with the release it came from.
	Version string
}

// Processor implements biokg.Processor for InterPro.
type Processor struct {
	cfg     Config
	entries []entry
	ids     map[string]bool
	// children maps a parent interpro id to its direct children.
	children map[string][]string
	toGo     map[string][]string
	toGenes  map[string][]geneHit
}

type entry struct {
	ac        string
	name      string
	shortName string
}

type geneHit struct {
	hgnc  string
	start int
	end   int
}

// NewProcessor parses the release files eagerly. A missing file surfaces as
// a biokg SourceUnavailableError; malformed individual lines surface later
// as invalid nodes or relations for the validator to drop.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.XrefDir == "" {
		cfg.XrefDir = filepath.Join(cfg.Dir, "xrefs")
	}
	for _, name := range []string{EntriesFile, ShortFile, TreeFile, GoFile, ProteinsFile, XrefFile} {
		path := filepath.Join(cfg.Dir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, biokg.SourceUnavailable(path, err)
		}
	}
	p := &Processor{
		cfg:      cfg,
		ids:      make(map[string]bool),
		children: make(map[string][]string),
		toGo:     make(map[string][]string),
		toGenes:  make(map[string][]geneHit),
	}
	if err := p.readEntries(); err != nil {
		return nil, err
	}
	if err := p.readTree(); err != nil {
		return nil, err
	}
	if err := p.readGoMapping(); err != nil {
		return nil, err
	}
	if err := p.readGenes(); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements biokg.Processor.
func (p *Processor) Name() string { return "interpro" }

// NodeTypes implements biokg.Processor.
func (p *Processor) NodeTypes() []string { return []string{"BioEntity"} }

// Importable implements biokg.Processor.
func (p *Processor) Importable() bool { return true }

// Nodes yields one node per domain entry plus one per distinct GO term and
// gene referenced by the mappings.
func (p *Processor) Nodes(nodeType string) (biokg.NodeSource, error) {
	if nodeType != "BioEntity" {
		return nil, errors.Errorf("interpro does not produce %q nodes", nodeType)
	}
	var nodes []biokg.Node
	uniqueGo := make(map[string]bool)
	uniqueHgnc := make(map[string]bool)
	for _, e := range p.entries {
		nodes = append(nodes, biokg.NewNode("IP", e.ac, []string{"BioEntity"}, map[string]interface{}{
			"name":       e.name,
			"short_name": e.shortName,
			"version":    p.cfg.Version,
		}))
		for _, goID := range p.toGo[e.ac] {
			uniqueGo[goID] = true
		}
		for _, hit := range p.toGenes[e.ac] {
			uniqueHgnc[hit.hgnc] = true
		}
	}
	for _, goID := range sortedKeys(uniqueGo) {
		nodes = append(nodes, biokg.NewNode("GO", goID, []string{"BioEntity"}, nil))
	}
	hgncIDs := sortedKeys(uniqueHgnc)
	sort.Slice(hgncIDs, func(i, j int) bool { return numLess(hgncIDs[i], hgncIDs[j]) })
	for _, hgncID := range hgncIDs {
		nodes = append(nodes, biokg.NewNode("HGNC", hgncID, []string{"BioEntity"}, nil))
	}
	return biokg.NodesOf(nodes...), nil
}

// Relations yields isa edges up the domain hierarchy, associated_with edges
// to GO terms, and has_domain edges from genes with the match coordinates.
func (p *Processor) Relations() (biokg.RelationSource, error) {
	var rels []biokg.Relation
	for _, interproID := range sortedKeys(p.ids) {
		children := append([]string(nil), p.children[interproID]...)
		sort.Strings(children)
		for _, child := range children {
			rels = append(rels, biokg.NewRelation("IP", child, "IP", interproID, "isa"))
		}
		for _, goID := range p.toGo[interproID] {
			rels = append(rels, biokg.NewRelation("IP", interproID, "GO", goID, "associated_with"))
		}
		hits := append([]geneHit(nil), p.toGenes[interproID]...)
		sort.Slice(hits, func(i, j int) bool { return numLess(hits[i].hgnc, hits[j].hgnc) })
		for _, hit := range hits {
			r := biokg.NewRelation("HGNC", hit.hgnc, "IP", interproID, "has_domain")
			r.Data = map[string]interface{}{
				"start:int": hit.start,
				"end:int":   hit.end,
				"version":   p.cfg.Version,
			}
			rels = append(rels, r)
		}
	}
	return biokg.RelationsOf(rels...), nil
}

func (p *Processor) readEntries() error {
	short := make(map[string]string)
	src := tabular.NewSource(
		tabular.WithURLs(filepath.Join(p.cfg.Dir, ShortFile)),
		tabular.WithColumns("ENTRY_AC", "ENTRY_SHORT_NAME"),
	)
	err := eachRow(src, func(row map[string]string) {
		short[row["ENTRY_AC"]] = row["ENTRY_SHORT_NAME"]
	})
	if err != nil {
		return errors.Wrap(err, "reading short names")
	}

	src = tabular.NewSource(tabular.WithURLs(filepath.Join(p.cfg.Dir, EntriesFile)))
	err = eachRow(src, func(row map[string]string) {
		// only domain type entries become nodes
		if row["ENTRY_TYPE"] != "Domain" {
			return
		}
		ac := row["ENTRY_AC"]
		p.entries = append(p.entries, entry{ac: ac, name: row["ENTRY_NAME"], shortName: short[ac]})
		p.ids[ac] = true
	})
	return errors.Wrap(err, "reading entry list")
}

// readTree parses the parent/child hierarchy, where nesting depth is
// expressed by pairs of leading dashes:
//
//	IPR000001
//	--IPR000002
//	----IPR000003
func (p *Processor) readTree() error {
	path := filepath.Join(p.cfg.Dir, TreeFile)
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening tree file")
	}
	defer f.Close()

	var stack []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		// everything after "::" is the entry name, which we don't need
		line = strings.SplitN(line, "::", 2)[0]
		depth := 0
		for strings.HasPrefix(line[depth:], "--") {
			depth += 2
		}
		id := line[depth:]
		level := depth / 2
		if level > len(stack) {
			// nesting jumped past its parent, drop the malformed line
			continue
		}
		if level > 0 {
			parent := stack[level-1]
			p.children[parent] = append(p.children[parent], id)
		}
		stack = append(stack[:level], id)
	}
	return errors.Wrapf(scan.Err(), "scanning %s", path)
}

// readGoMapping parses lines like
//
//	InterPro:IPR000003 Retinoid X receptor/HNF4 > GO:DNA binding ; GO:0003677
func (p *Processor) readGoMapping() error {
	path := filepath.Join(p.cfg.Dir, GoFile)
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening go mapping")
	}
	defer f.Close()

	seen := make(map[string]bool)
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		interproID, goID, ok := parseGoMappingLine(line)
		if !ok || !p.ids[interproID] || seen[interproID+goID] {
			continue
		}
		seen[interproID+goID] = true
		p.toGo[interproID] = append(p.toGo[interproID], goID)
	}
	if err := scan.Err(); err != nil {
		return errors.Wrapf(err, "scanning %s", path)
	}
	for _, goIDs := range p.toGo {
		sort.Strings(goIDs)
	}
	return nil
}

func parseGoMappingLine(line string) (interproID, goID string, ok bool) {
	if !strings.HasPrefix(line, "InterPro:") {
		return "", "", false
	}
	line = line[len("InterPro:"):]
	semi := strings.LastIndex(line, ";")
	if semi < 0 {
		return "", "", false
	}
	goID = strings.TrimSpace(line[semi+1:])
	interproID = strings.SplitN(line, " ", 2)[0]
	return interproID, goID, interproID != "" && goID != ""
}

// readGenes loads the uniprot-to-hgnc cross references into the leveldb
// cache and translates the protein membership table into per-gene domain
// hits. TrEMBL accessions with no gene mapping are dropped here.
func (p *Processor) readGenes() error {
	xrefs, err := leveldb.NewXrefMap(p.cfg.XrefDir, uniprotHgnc)
	if err != nil {
		return errors.Wrap(err, "opening xref map")
	}
	defer xrefs.Close()

	var rowErr error
	src := tabular.NewSource(
		tabular.WithURLs(filepath.Join(p.cfg.Dir, XrefFile)),
		tabular.WithColumns("uniprot", "hgnc"),
	)
	err = eachRow(src, func(row map[string]string) {
		if err := xrefs.Put(uniprotHgnc, row["uniprot"], row["hgnc"]); err != nil {
			rowErr = err
		}
	})
	if err != nil {
		return errors.Wrap(err, "loading uniprot-hgnc xrefs")
	}
	if rowErr != nil {
		return errors.Wrap(rowErr, "storing uniprot-hgnc xrefs")
	}

	seen := make(map[string]map[geneHit]bool)
	src = tabular.NewSource(
		tabular.WithURLs(filepath.Join(p.cfg.Dir, ProteinsFile)),
		tabular.WithColumns("interpro", "uniprot", "start", "end"),
	)
	err = eachRow(src, func(row map[string]string) {
		interproID := row["interpro"]
		if !p.ids[interproID] {
			return
		}
		hgnc, ok, err := xrefs.Get(uniprotHgnc, row["uniprot"])
		if err != nil {
			rowErr = err
			return
		}
		if !ok {
			return
		}
		start, _ := strconv.Atoi(row["start"])
		end, _ := strconv.Atoi(row["end"])
		hit := geneHit{hgnc: hgnc, start: start, end: end}
		if seen[interproID] == nil {
			seen[interproID] = make(map[geneHit]bool)
		}
		if seen[interproID][hit] {
			return
		}
		seen[interproID][hit] = true
		p.toGenes[interproID] = append(p.toGenes[interproID], hit)
	})
	if err != nil {
		return errors.Wrap(err, "reading protein membership")
	}
	return errors.Wrap(rowErr, "translating uniprot accessions")
}

func eachRow(src *tabular.Source, fn func(row map[string]string)) error {
	for {
		row, err := src.Record()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		fn(row)
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func numLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr != nil || berr != nil {
		return a < b
	}
	return ai < bi
}
