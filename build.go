package biokg

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Build drives the whole pipeline across all registered sources: it decides
// per source whether extraction is needed, runs cross-source node assembly
// for the node types which require it, and produces the final manifest of
// node and edge files for bulk loading.
type Build struct {
	Datadir       string   `help:"Directory under which all pipeline output is written."`
	Process       bool     `help:"Extract sources whose output files are missing."`
	ForceProcess  bool     `help:"Re-extract every source, ignoring existing output files."`
	Assemble      bool     `help:"Assemble node types needing cross-source merging, where not yet assembled."`
	ForceAssemble bool     `help:"Re-assemble every such node type, ignoring existing assembled files."`
	RunImport     bool     `help:"Run the neo4j-admin import command after building the manifest."`
	WithSudo      bool     `help:"Prepend sudo to the import command."`
	SkipFailed    bool     `help:"Drop sources whose upstream data is missing instead of aborting."`
	Concurrency   int      `help:"Number of sources to extract concurrently."`
	Database      string   `help:"Name of the target graph database."`
	AssembleTypes []string `help:"Node types which require cross-source assembly."`

	Sources []ProcessorSpec `flag:"-"`
	Checker Checker         `flag:"-"`
	Log     Logger          `flag:"-"`
	Stats   Statter         `flag:"-"`
	Merge   MergePolicy     `flag:"-"`
}

// NewBuild returns a Build with defaults matching a full local run.
func NewBuild() *Build {
	return &Build{
		Datadir:       "biokg-data",
		Database:      "biokg",
		Concurrency:   1,
		AssembleTypes: []string{"BioEntity", "Publication"},
	}
}

// AddSources registers processor specs. Registration order fixes manifest
// order and assembly input order.
func (b *Build) AddSources(specs ...ProcessorSpec) {
	b.Sources = append(b.Sources, specs...)
}

// Manifest is the ordered list of bulk files a run produced or found,
// handed to the external bulk-load invocation.
type Manifest struct {
	NodePaths []string
	EdgePaths []string
}

// result accumulates one spec's contribution during the extraction phase.
type result struct {
	dropped     bool
	nodesByType map[string][]Node
}

// Run executes the pipeline and returns the manifest. Record-level
// validation failures never abort; missing upstream data aborts unless
// SkipFailed is set; write failures always abort.
func (b *Build) Run() (*Manifest, error) {
	log := b.Log
	if log == nil {
		log = NopLogger{}
	}
	stats := b.Stats
	if stats == nil {
		stats = NopStatter{}
	}
	checker := b.Checker
	if checker == nil {
		checker = NewRegexChecker()
	}
	validator := NewValidator(checker, log)
	dumper := NewDumper(validator, log, stats)

	assembleSet := make(map[string]bool, len(b.AssembleTypes))
	for _, t := range b.AssembleTypes {
		assembleSet[t] = true
	}

	results := make([]*result, len(b.Sources))
	var mu sync.Mutex
	eg := errgroup.Group{}
	sem := make(chan struct{}, b.concurrency())
	for i, spec := range b.Sources {
		if !spec.Importable {
			continue
		}
		i, spec := i, spec
		results[i] = &result{}
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return b.runSpec(spec, results[i], dumper, log, &mu)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	manifest := &Manifest{}
	for _, t := range b.AssembleTypes {
		manifest.NodePaths = append(manifest.NodePaths, AssembledPath(b.Datadir, t))
	}
	for i, spec := range b.Sources {
		if !spec.Importable || results[i].dropped {
			continue
		}
		paths := NewPaths(b.Datadir, spec.Name, spec.NodeTypes)
		for _, nodeType := range spec.NodeTypes {
			if assembleSet[nodeType] {
				continue // covered by the assembled file
			}
			tsvPath, _, _ := paths.Nodes(nodeType)
			manifest.NodePaths = append(manifest.NodePaths, tsvPath)
		}
		edgesPath, _ := paths.Edges()
		manifest.EdgePaths = append(manifest.EdgePaths, edgesPath)
	}

	if err := b.assemble(results, assembleSet, log); err != nil {
		return nil, err
	}

	if skipped := validator.Skipped(); skipped > 0 {
		log.Printf("dropped %d invalid records in total", skipped)
	}

	if b.RunImport {
		command := b.ImportCommand(manifest)
		log.Printf("running shell command:\n%s", command)
		cmd := exec.Command("sh", "-c", command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return manifest, errors.Wrap(err, "running import command")
		}
	}
	return manifest, nil
}

func (b *Build) concurrency() int {
	if b.Concurrency < 1 {
		return 1
	}
	return b.Concurrency
}

// runSpec decides whether one source needs extraction and runs it. mu
// guards the per-spec result maps against the validator's concurrent use -
// each spec writes only its own result, so only construction errors and
// logging need care here.
func (b *Build) runSpec(spec ProcessorSpec, res *result, dumper *Dumper, log Logger, mu *sync.Mutex) error {
	paths := NewPaths(b.Datadir, spec.Name, spec.NodeTypes)
	log.Printf("checking %s", spec.Name)

	processed := true
	for _, nodeType := range spec.NodeTypes {
		tsvPath, snapPath, _ := paths.Nodes(nodeType)
		if !fileExists(tsvPath) || !fileExists(snapPath) {
			processed = false
		}
	}
	if edgesPath, _ := paths.Edges(); !fileExists(edgesPath) {
		processed = false
	}

	if !b.ForceProcess && !(b.Process && !processed) {
		return nil
	}

	p, err := spec.New()
	if err != nil {
		if IsSourceUnavailable(err) && b.SkipFailed {
			mu.Lock()
			res.dropped = true
			mu.Unlock()
			log.Printf("excluding %s from the import manifest: %v", spec.Name, err)
			return nil
		}
		return errors.Wrapf(err, "constructing processor %s", spec.Name)
	}
	log.Printf("processing %s", spec.Name)
	nodesByType, err := dumper.Dump(p, paths)
	if err != nil {
		return errors.Wrapf(err, "processing %s", spec.Name)
	}
	mu.Lock()
	res.nodesByType = nodesByType
	mu.Unlock()
	return nil
}

// assemble runs the global cross-source merge for each node type flagged as
// needing assembly, feeding each assembler from this run's freshly
// extracted nodes where available and from on-disk snapshots otherwise.
func (b *Build) assemble(results []*result, assembleSet map[string]bool, log Logger) error {
	for _, nodeType := range b.AssembleTypes {
		assembledPath := AssembledPath(b.Datadir, nodeType)
		if !b.ForceAssemble && !(b.Assemble && !fileExists(assembledPath)) {
			continue
		}
		asm := NewNodeAssembler(b.assemblerOpts()...)
		for i, spec := range b.Sources {
			if !spec.Importable || results[i].dropped || !containsType(spec.NodeTypes, nodeType) {
				continue
			}
			if nodes, ok := results[i].nodesByType[nodeType]; ok {
				asm.AddAll(nodes)
				continue
			}
			_, snapPath, _ := NewPaths(b.Datadir, spec.Name, spec.NodeTypes).Nodes(nodeType)
			if !fileExists(snapPath) {
				continue
			}
			snap, err := OpenSnapshot(snapPath)
			if err != nil {
				return errors.Wrapf(err, "opening snapshot for %s", spec.Name)
			}
			nodes, err := snap.ReadNodes()
			snap.Close()
			if err != nil {
				return errors.Wrapf(err, "reading snapshot for %s", spec.Name)
			}
			asm.AddAll(nodes)
		}
		log.Printf("assembling %d %s nodes", asm.Len(), nodeType)
		samplePath := strings.TrimSuffix(assembledPath, ".tsv.gz") + "_sample.tsv"
		if err := WriteNodes(asm.Assemble(), assembledPath, samplePath); err != nil {
			return errors.Wrapf(err, "writing assembled %s nodes", nodeType)
		}
	}
	return nil
}

func (b *Build) assemblerOpts() []AssemblerOption {
	if b.Merge != nil {
		return []AssemblerOption{OptMergePolicy(b.Merge)}
	}
	return nil
}

// ImportCommand renders the external bulk-load invocation for the manifest.
// The command is not executed unless RunImport is set; the pipeline's
// responsibility ends at producing a complete, ordered manifest.
func (b *Build) ImportCommand(m *Manifest) string {
	var sb strings.Builder
	if b.WithSudo {
		sb.WriteString("sudo ")
	}
	sb.WriteString("neo4j-admin import \\\n")
	sb.WriteString("  --database=" + b.Database + " \\\n")
	sb.WriteString("  --delimiter='TAB' \\\n")
	sb.WriteString("  --skip-duplicate-nodes=true \\\n")
	sb.WriteString("  --skip-bad-relationships=true")
	for _, p := range m.NodePaths {
		sb.WriteString(" \\\n  --nodes " + p)
	}
	for _, p := range m.EdgePaths {
		sb.WriteString(" \\\n  --relationships " + p)
	}
	return sb.String()
}

func containsType(types []string, t string) bool {
	for _, nt := range types {
		if nt == t {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
