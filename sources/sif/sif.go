// Package sif reads a simple interaction format dump of pre-assembled
// statements, either from a local gzipped TSV file or from an S3 object, and
// exposes it as a biokg.Processor producing agent entities, evidence nodes,
// and the typed interaction edges between agents.
package sif

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/tabular"
)

// Config holds the construction parameters for the SIF processor.
type Config struct {
	// Path locates the dump: either a local file path or an s3://bucket/key
	// URL. The file is a gzipped TSV with a header row.
	Path string
	// Region is the AWS region used for s3:// paths.
	Region string
	// CacheDir is where s3 objects are downloaded to; defaults to the
	// working directory. A previously downloaded copy is reused.
	CacheDir string
	// Version tags agent nodes with the dump they came from.
	Version string
	// Log receives a line per malformed dump row. Defaults to discarding.
	Log biokg.Logger
}

type row struct {
	aNS, aID, aName string
	bNS, bID, bName string
	stmtType        string
	evidenceCount   int64
	stmtHash        int64
	belief          float64
	evidenceID      string
}

// Processor implements biokg.Processor for the SIF dump.
type Processor struct {
	cfg     Config
	rows    []row
	skipped int64
}

// NewProcessor fetches (if needed) and parses the dump eagerly. An
// unreachable path, bucket, or object surfaces as a
// biokg.SourceUnavailableError so a multi-source build can elect to skip
// it. Rows with unparseable numeric cells are dropped and logged, never
// fatal.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Log == nil {
		cfg.Log = biokg.NopLogger{}
	}
	path, err := localize(cfg)
	if err != nil {
		return nil, err
	}
	p := &Processor{cfg: cfg}
	if err := p.parse(path); err != nil {
		return nil, err
	}
	return p, nil
}

// Name implements biokg.Processor.
func (p *Processor) Name() string { return "sif" }

// NodeTypes implements biokg.Processor.
func (p *Processor) NodeTypes() []string { return []string{"BioEntity", "Evidence"} }

// Importable implements biokg.Processor.
func (p *Processor) Importable() bool { return true }

// Nodes yields the deduplicated agents for "BioEntity", and one provenance
// node per statement row for "Evidence".
func (p *Processor) Nodes(nodeType string) (biokg.NodeSource, error) {
	switch nodeType {
	case "BioEntity":
		return biokg.NodesOf(p.agents()...), nil
	case "Evidence":
		nodes := make([]biokg.Node, 0, len(p.rows))
		for _, r := range p.rows {
			nodes = append(nodes, biokg.NewNode(biokg.EvidenceNS, r.evidenceID, []string{"Evidence"}, map[string]interface{}{
				"stmt_hash:long": r.stmtHash,
				"stmt_type":      r.stmtType,
				"belief:float":   r.belief,
			}))
		}
		return biokg.NodesOf(nodes...), nil
	default:
		return nil, errors.Errorf("sif does not produce %q nodes", nodeType)
	}
}

// Relations yields one typed edge per statement row plus a has_evidence edge
// linking the subject agent to the row's provenance node.
func (p *Processor) Relations() (biokg.RelationSource, error) {
	rels := make([]biokg.Relation, 0, 2*len(p.rows))
	for _, r := range p.rows {
		stmt := biokg.NewRelation(r.aNS, r.aID, r.bNS, r.bID, r.stmtType)
		stmt.Data = map[string]interface{}{
			"stmt_hash:long":      r.stmtHash,
			"evidence_count:long": r.evidenceCount,
			"belief:float":        r.belief,
		}
		rels = append(rels, stmt)
		rels = append(rels, biokg.NewRelation(r.aNS, r.aID, biokg.EvidenceNS, r.evidenceID, "has_evidence"))
	}
	return biokg.RelationsOf(rels...), nil
}

func (p *Processor) agents() []biokg.Node {
	seen := make(map[string]bool)
	var nodes []biokg.Node
	add := func(ns, id, name string) {
		key := biokg.NormID(ns, id)
		if seen[key] {
			return
		}
		seen[key] = true
		nodes = append(nodes, biokg.NewNode(ns, id, []string{"BioEntity"}, map[string]interface{}{
			"name":    name,
			"version": p.cfg.Version,
		}))
	}
	for _, r := range p.rows {
		add(r.aNS, r.aID, r.aName)
		add(r.bNS, r.bID, r.bName)
	}
	return nodes
}

func (p *Processor) parse(path string) error {
	src := tabular.NewSource(tabular.WithURLs(path))
	eids := biokg.NewEvidenceIDs()
	line := 0
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		} else if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		line++
		count, err := strconv.ParseInt(rec["evidence_count"], 10, 64)
		if err != nil {
			p.skipRow(line, "evidence_count", rec["evidence_count"])
			continue
		}
		hash, err := strconv.ParseInt(rec["stmt_hash"], 10, 64)
		if err != nil {
			p.skipRow(line, "stmt_hash", rec["stmt_hash"])
			continue
		}
		belief, err := strconv.ParseFloat(rec["belief"], 64)
		if err != nil {
			p.skipRow(line, "belief", rec["belief"])
			continue
		}
		p.rows = append(p.rows, row{
			aNS: rec["agA_ns"], aID: rec["agA_id"], aName: rec["agA_name"],
			bNS: rec["agB_ns"], bID: rec["agB_id"], bName: rec["agB_name"],
			stmtType:      rec["stmt_type"],
			evidenceCount: count,
			stmtHash:      hash,
			belief:        belief,
			evidenceID:    eids.Next(),
		})
	}
	return nil
}

func (p *Processor) skipRow(line int, field, value string) {
	p.skipped++
	p.cfg.Log.Debugf("row %d: bad %s %q - skipping", line, field, value)
}

// Skipped returns the number of dump rows dropped for unparseable cells.
func (p *Processor) Skipped() int64 { return p.skipped }

// localize returns a local file path for the dump, downloading from S3
// first when the path is an s3:// URL.
func localize(cfg Config) (string, error) {
	if !strings.HasPrefix(cfg.Path, "s3://") {
		if _, err := os.Stat(cfg.Path); err != nil {
			return "", biokg.SourceUnavailable(cfg.Path, err)
		}
		return cfg.Path, nil
	}

	u, err := url.Parse(cfg.Path)
	if err != nil {
		return "", errors.Wrapf(err, "parsing %s", cfg.Path)
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	local := filepath.Join(cfg.CacheDir, filepath.Base(key))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return "", errors.Wrap(err, "getting aws session")
	}
	result, err := s3.New(sess).GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", biokg.SourceUnavailable(cfg.Path, err)
	}
	defer result.Body.Close()

	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
			return "", errors.Wrap(err, "creating cache dir")
		}
	}
	f, err := os.Create(local + ".tmp")
	if err != nil {
		return "", errors.Wrap(err, "creating cache file")
	}
	if _, err := io.Copy(f, result.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrapf(err, "downloading %s", cfg.Path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "closing cache file")
	}
	if err := os.Rename(local+".tmp", local); err != nil {
		return "", errors.Wrap(err, "committing cache file")
	}
	return local, nil
}
