package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tamgam-edu/diya-core/internal/adapters/driven/download"
	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/services"
	"github.com/tamgam-edu/diya-core/internal/extractors"
	"github.com/tamgam-edu/diya-core/internal/runtime"
)

var catalogFlags struct {
	grades        []int
	chapters      []string
	force         bool
	dryRun        bool
	chunkSize     int
	overlap       int
	embedInterval time.Duration
	noIndex       bool
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Ingest reference textbooks from the catalog",
	Long: `Download, extract, chunk and embed reference textbook chapters.

Grades that already have reference chunks are skipped unless --force is set.
With --chapters only the matching chapters are considered, and the skip or
force decision is made per chapter. The ANN index is rebuilt afterwards
unless --dry-run or --no-index is set.

Examples:
  diya-ingest catalog                          # All catalog grades
  diya-ingest catalog --grades 8,9             # Two grades
  diya-ingest catalog --chapters '10/**'       # Every chapter of grade 10
  diya-ingest catalog --grades 9 --dry-run     # Chunk without embedding`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	f := catalogCmd.Flags()
	f.IntSliceVar(&catalogFlags.grades, "grades", nil, "grades to ingest (default: all catalog grades)")
	f.StringSliceVar(&catalogFlags.chapters, "chapters", nil, "chapter patterns over grade/NN paths, e.g. 9/0[1-3]")
	f.BoolVar(&catalogFlags.force, "force", false, "delete and re-embed already ingested grades or chapters")
	f.BoolVar(&catalogFlags.dryRun, "dry-run", false, "download and chunk without embedding or storing")
	f.IntVar(&catalogFlags.chunkSize, "chunk-size", 400, "words per chunk")
	f.IntVar(&catalogFlags.overlap, "overlap", 40, "words shared by neighbouring chunks")
	f.DurationVar(&catalogFlags.embedInterval, "embed-interval", services.DefaultEmbedInterval, "minimum spacing between embedding calls (0 disables)")
	f.BoolVar(&catalogFlags.noIndex, "no-index", false, "skip the ANN index build")
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if catalogFlags.overlap >= catalogFlags.chunkSize {
		return fmt.Errorf("--overlap (%d) must be smaller than --chunk-size (%d)", catalogFlags.overlap, catalogFlags.chunkSize)
	}
	interval := catalogFlags.embedInterval
	if !cmd.Flags().Changed("embed-interval") {
		if v := getEnv("CATALOG_EMBED_INTERVAL", ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid CATALOG_EMBED_INTERVAL: %w", err)
			}
			interval = d
		}
	}

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	client, err := newAIClient()
	if err != nil {
		return err
	}
	rt := runtime.NewServices(domain.NewRuntimeConfig("cli", embeddingDimensions()))
	rt.SetAIClient(client)
	if client.IsMock() && !catalogFlags.dryRun {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: no AI keys configured, storing mock vectors")
	}

	cache, err := download.NewBoltCache(resolveCacheDir())
	if err != nil {
		return err
	}
	defer cache.Close()

	ingestor := services.NewCatalogIngestor(services.CatalogIngestorConfig{
		Catalog:       cat,
		Vectors:       b.Vectors,
		Fetcher:       download.NewHTTPFetcher(download.FetcherConfig{UserAgent: "diya-ingest/" + version, Logger: logger}),
		Cache:         cache,
		Extractors:    extractors.DefaultRegistry(),
		Services:      rt,
		Lock:          b.Lock,
		Logger:        logger,
		ChunkSize:     catalogFlags.chunkSize,
		Overlap:       &catalogFlags.overlap,
		EmbedInterval: interval,
	})

	progress := newGradeProgress(cmd.ErrOrStderr())
	res, err := ingestor.IngestCatalog(ctx, catalogFlags.grades, services.CatalogOptions{
		Force:     catalogFlags.force,
		DryRun:    catalogFlags.dryRun,
		Chapters:  catalogFlags.chapters,
		SkipIndex: catalogFlags.noIndex,
		Progress:  progress.Update,
	})
	progress.Finish()

	writeSummary(cmd.OutOrStdout(), res, catalogFlags.dryRun)
	if err != nil {
		return err
	}
	if n := failedGrades(res); n > 0 {
		return fmt.Errorf("%d grade(s) failed", n)
	}
	return nil
}

// gradeProgress draws one progress bar per grade from chapter callbacks.
type gradeProgress struct {
	w     io.Writer
	bar   *progressbar.ProgressBar
	grade int
}

func newGradeProgress(w io.Writer) *gradeProgress {
	return &gradeProgress{w: w}
}

// Update advances the bar for p's grade, starting a new bar when the grade changes.
func (g *gradeProgress) Update(p services.ChapterProgress) {
	if g.bar == nil || g.grade != p.Grade {
		g.Finish()
		g.grade = p.Grade
		g.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(g.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]Grade %d[reset]", p.Grade)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(g.w)
			}),
		)
	}

	state := fmt.Sprintf("%d chunks", p.Chunks)
	switch {
	case p.Err != nil:
		state = "failed"
	case p.Skipped:
		state = "skipped"
	}
	g.bar.Describe(fmt.Sprintf("[cyan]Grade %d[reset] ch%02d %s", p.Grade, p.Chapter.Num, state))
	_ = g.bar.Set(p.Position)
}

// Finish completes the current bar, if any.
func (g *gradeProgress) Finish() {
	if g.bar == nil {
		return
	}
	_ = g.bar.Finish()
	g.bar = nil
}

// writeSummary prints one row per grade and the run totals.
func writeSummary(w io.Writer, res *domain.CatalogRunResult, dryRun bool) {
	if res == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GRADE\tSTATUS\tCHAPTERS\tSKIPPED\tCHUNKS\tNO VECTOR\tERROR")
	for _, g := range res.Grades {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%s\n",
			g.Grade, g.Status, g.ChaptersProcessed, g.ChaptersSkipped,
			g.TotalChunks, g.FailedEmbeddings, g.Error)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nTotal chunks: %d\n", res.TotalChunks)
	switch {
	case dryRun:
		fmt.Fprintln(w, "Dry run: nothing was stored")
	case res.IndexBuilt:
		fmt.Fprintln(w, "ANN index: built")
	default:
		fmt.Fprintln(w, "ANN index: not built")
	}
}

func failedGrades(res *domain.CatalogRunResult) int {
	if res == nil {
		return 0
	}
	n := 0
	for _, g := range res.Grades {
		if g.Status == domain.GradeStatusFailed {
			n++
		}
	}
	return n
}
