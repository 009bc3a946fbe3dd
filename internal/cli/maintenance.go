package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tamgam-edu/diya-core/internal/catalog"
	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

var replaceIndex bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the ANN index over stored vectors",
	Long: `Build the approximate nearest neighbour index used by search.
Without --replace an existing index is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.Vectors.BuildIndex(cmd.Context(), replaceIndex); err != nil {
			return fmt.Errorf("index build failed: %w", err)
		}
		cmd.Println("ANN index ready")
		return nil
	},
}

var statsClassID string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show embedding coverage and reference chunks per grade",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		st, err := b.Vectors.Stats(ctx, statsClassID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		scope := "all classes"
		if statsClassID != "" {
			scope = "class " + statsClassID
		}
		fmt.Fprintf(out, "Chunks (%s): %d\n", scope, st.Total)
		fmt.Fprintf(out, "  with vector:    %d\n", st.WithEmbedding)
		fmt.Fprintf(out, "  without vector: %d\n", st.WithoutEmbedding)
		fmt.Fprintf(out, "  coverage:       %.1f%%\n", st.CoveragePct())

		if statsClassID != "" {
			return nil
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "GRADE\tCHAPTERS\tINGESTED\tCHUNKS")
		for _, g := range cat.GradeNumbers() {
			book, _ := cat.Book(g)
			total, err := b.Vectors.Count(ctx, domain.ChunkFilter{ReferenceGrade: g})
			if err != nil {
				return err
			}
			ingested := 0
			for _, ch := range book.Chapters {
				n, err := b.Vectors.Count(ctx, domain.ChunkFilter{ReferenceGrade: g, ReferenceChapterNum: ch.Num})
				if err != nil {
					return err
				}
				if n > 0 {
					ingested++
				}
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", g, len(book.Chapters), ingested, total)
		}
		return tw.Flush()
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show the configured AI credential slots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newAIClient()
		if err != nil {
			return err
		}
		st := client.Status()
		out := cmd.OutOrStdout()
		if st.Mock {
			fmt.Fprintln(out, "No keys configured: running with mock embeddings")
			return nil
		}
		fmt.Fprintf(out, "Provider: %s  model: %s\n", st.Provider, client.Model())
		fmt.Fprintf(out, "Available: %d of %d\n\n", st.Available, st.Total)

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SLOT\tSTATE\tRECOVERS IN")
		for _, s := range st.Slots {
			state, wait := "available", "-"
			if !s.Available {
				state, wait = "exhausted", fmt.Sprintf("%ds", s.RecoveryInSeconds)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Index, state, wait)
		}
		return tw.Flush()
	},
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters [pattern...]",
	Short: "List catalog chapters, optionally filtered by grade/NN patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		sel, err := catalog.Select(cat, nil, args)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tTITLE\tURL")
		for _, g := range sel.GradeNumbers() {
			book, _ := sel.Book(g)
			for _, ch := range book.Chapters {
				url, err := sel.ChapterURL(g, ch)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", catalog.ChapterPath(g, ch), ch.Title, url)
			}
		}
		return tw.Flush()
	},
}

func init() {
	indexCmd.Flags().BoolVar(&replaceIndex, "replace", false, "drop and rebuild an existing index")
	statsCmd.Flags().StringVar(&statsClassID, "class", "", "limit coverage to one class")

	rootCmd.AddCommand(indexCmd, statsCmd, keysCmd, chaptersCmd)
}
