// Command asreval scores ASR hypotheses against reference transcriptions.
//
// Usage:
//
//	asreval run     --config asreval.yaml   evaluate a corpus and write reports
//	asreval serve   -c asreval.yaml         serve stored runs for re-slicing
//	asreval reslice Corpus_Metrics.json     re-aggregate a saved report
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/asreval/internal/config"
	"github.com/MrWong99/asreval/internal/corpus"
	"github.com/MrWong99/asreval/internal/evaluate"
	"github.com/MrWong99/asreval/internal/filter"
	"github.com/MrWong99/asreval/internal/health"
	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/observe"
	"github.com/MrWong99/asreval/internal/report"
	"github.com/MrWong99/asreval/internal/server"
	"github.com/MrWong99/asreval/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// logLevel backs the default logger so a config reload can change it.
var logLevel = new(slog.LevelVar)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "asreval:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "asreval",
		Short:         "Word-level evaluation of speech recognition output",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "asreval.yaml", "path to the YAML configuration file")
	root.AddCommand(newRunCmd(), newServeCmd(), newResliceCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "err", err)
		return nil, path, err
	}
	logLevel.Set(cfg.LogLevel.Level())
	return cfg, path, nil
}

// openStore returns the PostgreSQL store when a DSN is configured and an
// in-memory store otherwise. The checkers probe the chosen backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, []health.Checker, func(), error) {
	if cfg.Store.PostgresDSN == "" {
		return store.NewMemStore(), nil, func() {}, nil
	}
	pg, closeFn, err := store.Open(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	guarded := store.Guard(pg, store.NewBreaker(store.BreakerConfig{}))
	return guarded, []health.Checker{health.PingChecker("postgres", pg)}, closeFn, nil
}

func initTelemetry(ctx context.Context) (func(), error) {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}, nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the configured corpus and write its reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			save, _ := cmd.Flags().GetBool("save")
			name, _ := cmd.Flags().GetString("name")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initTelemetry(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			slog.Info("asreval run starting",
				"version", version,
				"reference_dir", cfg.Corpus.ReferenceDir,
				"hypothesis_dir", cfg.Corpus.HypothesisDir,
				"workers", cfg.WorkerCount(),
				"variant", cfg.AlignConfig().Variant.String(),
			)

			pairs, err := corpus.Load(cfg.Corpus.ReferenceDir, cfg.Corpus.HypothesisDir, cfg.Corpus.Files)
			if err != nil {
				slog.Error("failed to load corpus", "err", err)
				return err
			}

			ev := evaluate.New(
				evaluate.WithWorkers(cfg.WorkerCount()),
				evaluate.WithAlignment(cfg.AlignConfig()),
				evaluate.WithFilter(filter.New(cfg.FilterOptions())),
			)
			c, err := ev.EvaluateCorpus(ctx, pairs)
			if err != nil {
				slog.Error("evaluation failed", "err", err)
				return err
			}

			if dir := cfg.Report.OutputDir; dir != "" {
				w := report.NewWriter(dir, report.WithConfusionsTop(cfg.Report.ConfusionsTop))
				if err := w.WriteAll(c); err != nil {
					slog.Error("failed to write reports", "dir", dir, "err", err)
					return err
				}
			}

			if save {
				st, _, closeStore, err := openStore(ctx, cfg)
				if err != nil {
					slog.Error("failed to open store", "err", err)
					return err
				}
				defer closeStore()
				run, err := st.Save(ctx, name, c)
				if err != nil {
					slog.Error("failed to save run", "err", err)
					return err
				}
				slog.Info("run saved", "id", run.ID, "name", run.Name)
			}

			t := c.OverallText.Totals
			fmt.Fprintf(cmd.OutOrStdout(), "files=%d ref_len=%d cor=%d sub=%d del=%d ins=%d WER=%.4f MER=%.4f WIL=%.4f\n",
				c.Files.Len(), t.RefLen, t.Cor, t.Sub, t.Del, t.Ins, t.WER, t.MER, t.WIL)
			return nil
		},
	}
	cmd.Flags().Bool("save", false, "store the run snapshot for later re-slicing")
	cmd.Flags().String("name", "", "label of the stored run")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over the re-slicing HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr := cfg.Server.ListenAddr
			if addr == "" {
				addr = ":8080"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initTelemetry(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			st, checkers, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				slog.Error("failed to open store", "err", err)
				return err
			}
			defer closeStore()

			reports, _ := cmd.Flags().GetStringSlice("load")
			for _, p := range reports {
				if err := seed(ctx, st, p); err != nil {
					slog.Error("failed to load report", "path", p, "err", err)
					return err
				}
			}

			w, err := config.NewWatcher(path, func(old, new *config.Config) {
				d := config.Diff(old, new)
				if d.LogLevelChanged {
					logLevel.Set(d.NewLogLevel.Level())
					slog.Info("log level changed", "level", d.NewLogLevel)
				}
				if len(d.Restart) > 0 {
					slog.Warn("config keys changed that need a restart", "keys", d.Restart)
				}
			})
			if err != nil {
				return err
			}
			go w.Run(ctx)

			slog.Info("asreval serve starting", "version", version, "listen_addr", addr, "postgres", cfg.Store.PostgresDSN != "")
			srv := server.New(st, server.WithCheckers(checkers...))
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				slog.Error("server error", "err", err)
				return err
			}
			slog.Info("goodbye")
			return nil
		},
	}
	cmd.Flags().StringSlice("load", nil, "corpus reports to store before serving")
	return cmd
}

// seed stores the corpus report at path as a run named after the file.
func seed(ctx context.Context, st store.Store, path string) error {
	c, err := readReport(path)
	if err != nil {
		return err
	}
	run, err := st.Save(ctx, path, c)
	if err != nil {
		return err
	}
	slog.Info("report loaded", "path", path, "id", run.ID)
	return nil
}

func readReport(path string) (*metrics.CorpusMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	return report.ReadCorpus(f)
}

func newResliceCmd() *cobra.Command {
	var sel metrics.Selection
	cmd := &cobra.Command{
		Use:   "reslice <Corpus_Metrics.json>",
		Short: "Re-aggregate a written corpus report by file, language, note, or event type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readReport(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(metrics.Reslice(c, sel))
		},
	}
	cmd.Flags().StringSliceVar(&sel.Files, "files", nil, "files to keep")
	cmd.Flags().StringSliceVar(&sel.Languages, "languages", nil, "languages to keep")
	cmd.Flags().StringSliceVar(&sel.Notes, "notes", nil, "annotation notes to keep")
	cmd.Flags().StringSliceVar(&sel.EventTags, "event-tags", nil, "event-tag views to keep")
	return cmd
}
