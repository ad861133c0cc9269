package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"charrag/internal/adapter/fs"
	"charrag/internal/domain"
)

var (
	indexCharacter string
	indexReset     bool
	indexWatch     bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build character memory indexes",
	Long: `Embed every character definition and build its vector index.
Indexes are stored in .charrag/index.db within the project directory.
Episodic memories added with 'remember' survive a rebuild; --reset drops them.

Examples:
  charrag index                      # Build every character
  charrag index -c "Sherlock Holmes" # Build one character
  charrag index --reset              # Drop stored indexes first
  charrag index --watch              # Rebuild when a definition changes`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexCharacter, "character", "c", "", "build only this character")
	indexCmd.Flags().BoolVar(&indexReset, "reset", false, "drop stored indexes before building")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running and rebuild on definition changes")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	chars := a.catalog.List()
	if indexCharacter != "" {
		c, err := a.catalog.Get(indexCharacter)
		if err != nil {
			return err
		}
		chars = []*domain.Character{c}
	}
	if len(chars) == 0 {
		fmt.Printf("No character definitions found in %s\n", a.cfg.CharactersDir(GetRootDir()))
		return nil
	}

	if indexReset || a.cfg.Index.Reset {
		if indexCharacter != "" {
			if err := a.registry.Reset(chars[0].Name); err != nil {
				return err
			}
		} else if err := a.store.Clear(); err != nil {
			return fmt.Errorf("failed to clear indexes: %w", err)
		}
		fmt.Println(warnStyle.Render("Stored indexes dropped."))
	}

	fmt.Println(header(fmt.Sprintf("Indexing %d character(s) with %s/%s", len(chars), a.cfg.Index.Type, a.cfg.Index.Metric)))
	results, err := buildWithProgress(ctx, a, chars)
	printBuildResults(results)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Printf("\nIndex stored at: %s\n", dimStyle.Render(a.store.DB().Path()))

	if !indexWatch {
		return nil
	}
	return watchCharacters(ctx, a)
}

type buildResult struct {
	name  string
	stats domain.IndexStats
	err   error
}

func buildWithProgress(ctx context.Context, a *app, chars []*domain.Character) ([]buildResult, error) {
	bar := progressbar.NewOptions(len(chars),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var (
		mu      sync.Mutex
		results []buildResult
		done    int
	)
	start := time.Now()
	err := a.registry.BuildAll(ctx, chars, func(name string, st domain.IndexStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, buildResult{name: name, stats: st, err: err})
		done++
		_ = bar.Set(done)

		rate := float64(done) / time.Since(start).Seconds()
		if remaining := len(chars) - done; rate > 0 && remaining > 0 {
			eta := time.Duration(float64(remaining)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
		}
	})
	return results, err
}

func printBuildResults(results []buildResult) {
	if len(results) == 0 {
		return
	}
	fmt.Printf("\nIndexing complete:\n")
	for _, r := range results {
		if r.err != nil {
			fmt.Printf("  %s %s\n", warnStyle.Render("✗ "+r.name), r.err)
			continue
		}
		fmt.Printf("  ✓ %-24s %4d records  dim %d  %s\n", r.name, r.stats.Records, r.stats.Dimension, dimStyle.Render(string(r.stats.Kind)))
	}
}

// watchCharacters rebuilds a character whenever its definition file
// changes, until ctx is cancelled.
func watchCharacters(ctx context.Context, a *app) error {
	dir := a.cfg.CharactersDir(GetRootDir())
	w := fs.NewWatcher(dir, a.walker, func(path string) {
		if err := a.catalog.Reload(); err != nil {
			logger.Warn("reload characters failed", zap.String("path", path), zap.Error(err))
			return
		}
		c, ok := a.catalog.BySource(path)
		if !ok {
			logger.Info("definition removed, keeping its index", zap.String("path", path))
			return
		}
		st, err := a.registry.Build(ctx, c)
		if err != nil {
			logger.Error("rebuild failed", zap.String("character", c.Name), zap.Error(err))
			return
		}
		fmt.Printf("  ✓ rebuilt %-22s %4d records\n", c.Name, st.Records)
	}, fs.WithLogger(logger))

	fmt.Printf("\nWatching %s for changes (Ctrl+C to stop)...\n", dir)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
