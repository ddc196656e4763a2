package biokg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Node is a graph node contributed by a source. NS and ID together identify
// the entity the node describes; two nodes with the same normalized
// identifier describe the same entity even if their labels and data differ
// (the NodeAssembler reconciles those). Data values must be scalars - see
// RenderValue for the accepted types. Data keys may carry a bulk-loader type
// suffix (e.g. "evidence_count:long") which is passed through to the output
// header untouched.
type Node struct {
	NS     string
	ID     string
	Labels []string
	Data   map[string]interface{}
}

// NewNode creates a Node. labels and data may be nil.
func NewNode(ns, id string, labels []string, data map[string]interface{}) Node {
	return Node{NS: ns, ID: id, Labels: labels, Data: data}
}

// Key returns the normalized identifier which serves as the canonical join
// key for this node everywhere in the pipeline.
func (n Node) Key() string {
	return NormID(n.NS, n.ID)
}

func (n Node) String() string {
	return fmt.Sprintf("Node(%s, %s, %v)", n.NS, n.ID, n.Labels)
}

// Relation is a typed, attributed edge between two identified nodes.
// Relations are never merged across sources - the full tuple (source, target,
// type, data) is the relation's identity.
type Relation struct {
	SourceNS string
	SourceID string
	TargetNS string
	TargetID string
	RelType  string
	Data     map[string]interface{}
}

// NewRelation creates a Relation with no data.
func NewRelation(sourceNS, sourceID, targetNS, targetID, relType string) Relation {
	return Relation{
		SourceNS: sourceNS,
		SourceID: sourceID,
		TargetNS: targetNS,
		TargetID: targetID,
		RelType:  relType,
	}
}

func (r Relation) String() string {
	return fmt.Sprintf("Relation(%s:%s -%s-> %s:%s)", r.SourceNS, r.SourceID, r.RelType, r.TargetNS, r.TargetID)
}

// NormID returns the single string form "namespace:local-id" of an
// identifier. The namespace is lower-cased, and a redundant namespace prefix
// on the local id (as in GO:0003677 or CHEBI:27732) is dropped so the prefix
// appears exactly once. The result is stable for any given input and is the
// canonical join key used for node identity, snapshots, and output files.
func NormID(ns, id string) string {
	lns := strings.ToLower(ns)
	if idx := strings.IndexByte(id, ':'); idx > 0 && strings.EqualFold(id[:idx], ns) {
		id = id[idx+1:]
	}
	return lns + ":" + id
}

// SortNodes orders nodes by (namespace, local id). This is the output order
// for every node file and makes repeated runs byte-identical. The sort is
// stable so duplicate identifiers keep their extraction order.
func SortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].NS != nodes[j].NS {
			return nodes[i].NS < nodes[j].NS
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// SortRelations orders relations by (source namespace, source id, target
// namespace, target id).
func SortRelations(rels []Relation) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		if a.SourceNS != b.SourceNS {
			return a.SourceNS < b.SourceNS
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.TargetNS != b.TargetNS {
			return a.TargetNS < b.TargetNS
		}
		return a.TargetID < b.TargetID
	})
}

// RenderValue turns a scalar attribute value into its tabular string form.
// nil renders as the empty string, which is how missing attributes appear in
// output rows. Floats use the shortest representation which round-trips.
func RenderValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
