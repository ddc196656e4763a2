package biokg

import (
	"regexp"
	"sync/atomic"

	"github.com/pkg/errors"
)

// EvidenceNS is the namespace for internally generated evidence identifiers
// used by audit/provenance entities. Identifiers in this namespace are minted
// by the pipeline itself and are exempt from external namespace validation.
const EvidenceNS = "evidence"

// Checker validates an identifier against the rules of its namespace. The
// rules themselves live outside the pipeline; RegexChecker is the stock
// implementation.
type Checker interface {
	Valid(ns, id string) bool
}

// RegexChecker validates identifiers with one compiled pattern per
// namespace. Namespaces are matched case-insensitively; an identifier in a
// namespace with no registered pattern is invalid.
type RegexChecker struct {
	patterns map[string]*regexp.Regexp
}

// Patterns for the namespaces the stock sources produce. Callers register
// further namespaces with Add.
var defaultPatterns = map[string]string{
	"ip":      `^IPR\d{6}$`,
	"hgnc":    `^\d+$`,
	"go":      `^GO:\d{7}$`,
	"uniprot": `^[A-Z][A-Z0-9]{5,9}$`,
	"pubmed":  `^\d+$`,
	"chebi":   `^CHEBI:\d+$`,
	"mesh":    `^[CD]\d{6,9}$`,
}

// NewRegexChecker returns a RegexChecker preloaded with the default
// namespace patterns.
func NewRegexChecker() *RegexChecker {
	c := &RegexChecker{patterns: make(map[string]*regexp.Regexp)}
	for ns, pattern := range defaultPatterns {
		if err := c.Add(ns, pattern); err != nil {
			panic(err) // defaults are tested
		}
	}
	return c
}

// Add registers (or replaces) the pattern for a namespace.
func (c *RegexChecker) Add(ns, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.Wrapf(err, "compiling pattern for namespace %q", ns)
	}
	c.patterns[normNS(ns)] = re
	return nil
}

// Valid implements Checker.
func (c *RegexChecker) Valid(ns, id string) bool {
	re, ok := c.patterns[normNS(ns)]
	if !ok {
		return false
	}
	return re.MatchString(id)
}

func normNS(ns string) string {
	// namespaces are short ASCII tags; avoid strings.ToLower allocation for
	// the common already-lower case
	for i := 0; i < len(ns); i++ {
		if ns[i] >= 'A' && ns[i] <= 'Z' {
			b := []byte(ns)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return ns
}

// Validator filters node and relation streams, dropping records whose
// identifiers fail namespace validation. Dropping is never fatal: each drop
// is logged with the record's index in its stream, the record itself, and
// the reason, and a running skip count is kept. The validator holds no more
// than the current record.
type Validator struct {
	checker Checker
	log     Logger
	skipped int64
}

// NewValidator returns a Validator checking identifiers with checker and
// logging drops to log.
func NewValidator(checker Checker, log Logger) *Validator {
	if log == nil {
		log = NopLogger{}
	}
	return &Validator{checker: checker, log: log}
}

// Skipped returns the number of records dropped so far across all streams
// filtered by this validator.
func (v *Validator) Skipped() int64 {
	return atomic.LoadInt64(&v.skipped)
}

// CheckNode returns nil if the node's identifier passes namespace
// validation. Nodes in EvidenceNS always pass.
func (v *Validator) CheckNode(n Node) error {
	if n.NS == EvidenceNS {
		return nil
	}
	if !v.checker.Valid(n.NS, n.ID) {
		return errors.Errorf("invalid identifier %s:%s", n.NS, n.ID)
	}
	return nil
}

// CheckRelation returns nil if both endpoints independently pass namespace
// validation. Endpoints in EvidenceNS are exempt individually.
func (v *Validator) CheckRelation(r Relation) error {
	if r.SourceNS != EvidenceNS && !v.checker.Valid(r.SourceNS, r.SourceID) {
		return errors.Errorf("invalid source identifier %s:%s", r.SourceNS, r.SourceID)
	}
	if r.TargetNS != EvidenceNS && !v.checker.Valid(r.TargetNS, r.TargetID) {
		return errors.Errorf("invalid target identifier %s:%s", r.TargetNS, r.TargetID)
	}
	return nil
}

// FilterNodes wraps src so that invalid nodes are skipped with a diagnostic
// instead of being returned. The returned source keeps its own skip count,
// so callers filtering several streams concurrently can attribute drops to
// the right stream.
func (v *Validator) FilterNodes(src NodeSource) *FilteredNodeSource {
	return &FilteredNodeSource{v: v, src: src}
}

// FilterRelations wraps src so that invalid relations are skipped with a
// diagnostic instead of being returned.
func (v *Validator) FilterRelations(src RelationSource) *FilteredRelationSource {
	return &FilteredRelationSource{v: v, src: src}
}

// FilteredNodeSource is a NodeSource dropping invalid records, counting its
// own drops in addition to the validator's total.
type FilteredNodeSource struct {
	v       *Validator
	src     NodeSource
	idx     int
	skipped int64
}

// Node implements NodeSource.
func (s *FilteredNodeSource) Node() (Node, error) {
	for {
		n, err := s.src.Node()
		if err != nil {
			return n, err
		}
		idx := s.idx
		s.idx++
		if cerr := s.v.CheckNode(n); cerr != nil {
			s.skipped++
			atomic.AddInt64(&s.v.skipped, 1)
			s.v.log.Debugf("%d: %v - %v", idx, n, cerr)
			continue
		}
		return n, nil
	}
}

// Skipped returns the number of records this stream dropped.
func (s *FilteredNodeSource) Skipped() int64 { return s.skipped }

// FilteredRelationSource is the relation counterpart of FilteredNodeSource.
type FilteredRelationSource struct {
	v       *Validator
	src     RelationSource
	idx     int
	skipped int64
}

// Relation implements RelationSource.
func (s *FilteredRelationSource) Relation() (Relation, error) {
	for {
		r, err := s.src.Relation()
		if err != nil {
			return r, err
		}
		idx := s.idx
		s.idx++
		if cerr := s.v.CheckRelation(r); cerr != nil {
			s.skipped++
			atomic.AddInt64(&s.v.skipped, 1)
			s.v.log.Debugf("%d: %v - %v", idx, r, cerr)
			continue
		}
		return r, nil
	}
}

// Skipped returns the number of records this stream dropped.
func (s *FilteredRelationSource) Skipped() int64 { return s.skipped }
