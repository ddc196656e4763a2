package cmd

import (
	"io"
	"log"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"

	"github.com/biokg/biokg"
	"github.com/biokg/biokg/sources/interpro"
	"github.com/biokg/biokg/sources/pubmed"
	"github.com/biokg/biokg/sources/sif"
	"github.com/biokg/biokg/termstat"
)

// BuildMain is wrapped by NewBuildCommand and only exported for testing
// purposes.
var BuildMain *biokg.Build

// SourceFlags configures which upstream sources a build run registers. An
// empty location disables the source.
type SourceFlags struct {
	InterproDir     string `help:"Directory holding the InterPro release files. Empty disables the source."`
	InterproVersion string `help:"InterPro release version tag recorded on its nodes."`
	SifPath         string `help:"Local path or s3:// URL of the statement dump. Empty disables the source."`
	SifRegion       string `help:"AWS region for s3:// statement dumps."`
	SifCache        string `help:"Directory where s3 statement dumps are cached."`
	SifVersion      string `help:"Statement dump version tag recorded on its nodes."`
	PubmedPath      string `help:"Citation table path. Empty disables the source."`
	Verbose         bool   `help:"Enable debug logging."`
}

func (sf *SourceFlags) specs() []biokg.ProcessorSpec {
	var specs []biokg.ProcessorSpec
	if sf.InterproDir != "" {
		specs = append(specs, biokg.ProcessorSpec{
			Name:       "interpro",
			NodeTypes:  []string{"BioEntity"},
			Importable: true,
			New: func() (biokg.Processor, error) {
				return interpro.NewProcessor(interpro.Config{
					Dir:     sf.InterproDir,
					Version: sf.InterproVersion,
				})
			},
		})
	}
	if sf.SifPath != "" {
		specs = append(specs, biokg.ProcessorSpec{
			Name:       "sif",
			NodeTypes:  []string{"BioEntity", "Evidence"},
			Importable: true,
			New: func() (biokg.Processor, error) {
				return sif.NewProcessor(sif.Config{
					Path:     sf.SifPath,
					Region:   sf.SifRegion,
					CacheDir: sf.SifCache,
					Version:  sf.SifVersion,
				})
			},
		})
	}
	if sf.PubmedPath != "" {
		specs = append(specs, biokg.ProcessorSpec{
			Name:       "pubmed",
			NodeTypes:  []string{"Publication"},
			Importable: true,
			New: func() (biokg.Processor, error) {
				return pubmed.NewProcessor(pubmed.Config{Path: sf.PubmedPath})
			},
		})
	}
	return specs
}

// NewBuildCommand returns a new cobra command wrapping BuildMain.
func NewBuildCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	BuildMain = biokg.NewBuild()
	srcFlags := &SourceFlags{}
	buildCommand := &cobra.Command{
		Use:   "build",
		Short: "build - extract sources and write the bulk import files",
		Long: `Runs the extraction pipeline over the configured sources,
assembles node types shared across sources, and writes the gzipped TSV
files plus the neo4j-admin import manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if srcFlags.Verbose {
				BuildMain.Log = biokg.NewVerboseLogger(stderr)
			} else {
				BuildMain.Log = biokg.NewLogger(stderr)
			}
			BuildMain.Stats = termstat.NewCollector(stdout)
			BuildMain.AddSources(srcFlags.specs()...)
			manifest, err := BuildMain.Run()
			if err != nil {
				return err
			}
			log.Printf("built %d node files and %d edge files", len(manifest.NodePaths), len(manifest.EdgePaths))
			log.Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := buildCommand.Flags()
	err = commandeer.Flags(flags, BuildMain)
	if err != nil {
		panic(err)
	}
	err = commandeer.Flags(flags, srcFlags)
	if err != nil {
		panic(err)
	}
	return buildCommand
}

func init() {
	subcommandFns["build"] = NewBuildCommand
}
