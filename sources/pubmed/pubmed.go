// Package pubmed turns a gene-to-publication citation table into a
// biokg.Processor producing Publication nodes and has_citation edges.
package pubmed

import (
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/tabular"
)

// Config holds the construction parameters for the PubMed processor.
type Config struct {
	// Path is a TSV (optionally gzipped) with header
	// pmid, title, year, journal, hgnc_id. The same pmid may appear on
	// many rows, once per cited gene.
	Path string
}

// Processor implements biokg.Processor for the citation table.
type Processor struct {
	cfg       Config
	pubs      []biokg.Node
	citations []biokg.Relation
}

// NewProcessor parses the table eagerly, deduplicating publications by pmid.
// A missing file surfaces as a biokg SourceUnavailableError.
func NewProcessor(cfg Config) (*Processor, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, biokg.SourceUnavailable(cfg.Path, err)
	}
	p := &Processor{cfg: cfg}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements biokg.Processor.
func (p *Processor) Name() string { return "pubmed" }

// NodeTypes implements biokg.Processor.
func (p *Processor) NodeTypes() []string { return []string{"Publication"} }

// Importable implements biokg.Processor.
func (p *Processor) Importable() bool { return true }

// Nodes yields one Publication node per distinct pmid.
func (p *Processor) Nodes(nodeType string) (biokg.NodeSource, error) {
	if nodeType != "Publication" {
		return nil, errors.Errorf("pubmed does not produce %q nodes", nodeType)
	}
	return biokg.NodesOf(p.pubs...), nil
}

// Relations yields a has_citation edge from each gene to each paper that
// mentions it.
func (p *Processor) Relations() (biokg.RelationSource, error) {
	return biokg.RelationsOf(p.citations...), nil
}

func (p *Processor) parse() error {
	src := tabular.NewSource(tabular.WithURLs(p.cfg.Path))
	seen := make(map[string]bool)
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrapf(err, "reading %s", p.cfg.Path)
		}
		pmid := rec["pmid"]
		if !seen[pmid] {
			seen[pmid] = true
			data := map[string]interface{}{
				"title":   rec["title"],
				"journal": rec["journal"],
			}
			if year, err := strconv.Atoi(rec["year"]); err == nil {
				data["year:int"] = year
			}
			p.pubs = append(p.pubs, biokg.NewNode("PUBMED", pmid, []string{"Publication"}, data))
		}
		p.citations = append(p.citations, biokg.NewRelation("HGNC", rec["hgnc_id"], "PUBMED", pmid, "has_citation"))
	}
}
