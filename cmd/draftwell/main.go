package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/draftwell/draftwell/internal/adapters/duckdb"
	"github.com/draftwell/draftwell/internal/adapters/providers"
	"github.com/draftwell/draftwell/internal/adapters/search"
	appconfig "github.com/draftwell/draftwell/internal/config"
	"github.com/draftwell/draftwell/internal/core/domain"
	"github.com/draftwell/draftwell/internal/core/services"
	"github.com/draftwell/draftwell/pkg/kernel"
)

var (
	flagDBPath    string
	flagBrandsDir string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	root := &cobra.Command{
		Use:           "draftwell",
		Short:         "Evaluator-gated content generation workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDBPath, "db", defaultDBPath(), "path to the DuckDB database file")
	root.PersistentFlags().StringVar(&flagBrandsDir, "brands", "configs", "directory with brand YAML configs")

	root.AddCommand(newServeCmd(logger))
	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newIngestCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func defaultDBPath() string {
	if p := os.Getenv("DRAFTWELL_DB_PATH"); p != "" {
		return p
	}
	return "draftwell.db"
}

// deps holds everything the subcommands wire up from flags and settings.
type deps struct {
	repo      *duckdb.Repository
	brands    *appconfig.BrandStore
	settings  *appconfig.SettingsStore
	models    *services.ModelRouter
	eventBus  *services.EventBus
	traces    *services.TraceCollector
	embedding domain.EmbeddingEngine
}

func buildDeps(ctx context.Context, logger *slog.Logger) (*deps, error) {
	repo, err := duckdb.NewRepository(flagDBPath)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	brands, err := appconfig.NewBrandStore(logger, flagBrandsDir)
	if err != nil {
		return nil, fmt.Errorf("load brand configs: %w", err)
	}

	secretKey, err := appconfig.NewSecretKey()
	if err != nil {
		return nil, fmt.Errorf("init secret key: %w", err)
	}
	settings, err := appconfig.NewSettingsStore(logger, repo, secretKey)
	if err != nil {
		return nil, fmt.Errorf("init settings store: %w", err)
	}
	cfg := settings.GetConfig()

	llmProvider, err := providers.BuildLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}
	embeddingEngine, err := providers.BuildEmbedding(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedding engine: %w", err)
	}

	eventBus := services.NewEventBus(logger)
	traces := services.NewTraceCollector(logger, eventBus, repo)
	models := services.NewModelRouter(logger, llmProvider, cfg.Providers.LLM.DefaultModel, traces)

	// Hot-reload: rebuild the provider when settings change and swap it in.
	settings.OnChange(func(updated *domain.AppConfig) {
		newLLM, err := providers.BuildLLM(updated)
		if err != nil {
			logger.Error("provider rebuild on settings change failed", "error", err)
			return
		}
		models.UpdateProvider(newLLM, updated.Providers.LLM.DefaultModel)
		logger.Info("llm provider hot-reloaded")
	})

	return &deps{
		repo:      repo,
		brands:    brands,
		settings:  settings,
		models:    models,
		eventBus:  eventBus,
		traces:    traces,
		embedding: embeddingEngine,
	}, nil
}

func (d *deps) controller(logger *slog.Logger) *services.Controller {
	cfg := d.settings.GetConfig()
	searchClient := search.NewTavilyClient(cfg.Providers.Search.APIKey, "")
	return services.NewController(
		logger,
		d.brands,
		d.repo,
		services.NewToolRouter(logger, d.models),
		services.NewRetrievalService(logger, d.repo, d.embedding),
		services.NewWebSearchService(logger, d.models, searchClient),
		services.NewGenerator(logger, d.models),
		services.NewEvaluator(logger, d.models),
		d.eventBus,
		d.traces,
	)
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx, logger)
			if err != nil {
				return err
			}
			defer d.repo.Close()

			apiServer := kernel.NewServer(logger, d.controller(logger), d.repo, d.brands, d.eventBus, d.traces, d.settings)
			handler, err := apiServer.Handler()
			if err != nil {
				return err
			}

			c := cors.New(cors.Options{
				AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:5174"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			})

			httpServer := &http.Server{
				Addr:    addr,
				Handler: c.Handler(handler),
			}

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("starting api server", "addr", addr, "brands", d.brands.List())
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gCtx.Done()
				logger.Info("shutting down api server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		brand     string
		template  string
		useCoT    bool
		maxIter   int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Execute one content run and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx, logger)
			if err != nil {
				return err
			}
			defer d.repo.Close()

			state, err := d.controller(logger).Run(ctx, domain.ContentRequest{
				Topic:            args[0],
				Brand:            brand,
				Template:         template,
				UseCoT:           useCoT,
				MaxIterations:    maxIter,
				QualityThreshold: threshold,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), state.DraftContent)
			fmt.Fprintf(cmd.ErrOrStderr(), "\nrun %s: %s (%s)\n", state.ID, state.Status, state.StoppingReason())
			if state.Status == domain.RunStatusFailed {
				return fmt.Errorf("run failed at %s: %s", state.FailureStage, state.FailureError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&brand, "brand", "", "brand config name (required)")
	cmd.Flags().StringVar(&template, "template", "POST", "content template: POST, LONG_POST, BLOG_POST, NEWSLETTER")
	cmd.Flags().BoolVar(&useCoT, "cot", false, "ask the writer to reason before the final content")
	cmd.Flags().IntVar(&maxIter, "max-iterations", 0, "override brand iteration limit")
	cmd.Flags().Float64Var(&threshold, "quality-threshold", 0, "override brand quality threshold")
	_ = cmd.MarkFlagRequired("brand")
	return cmd
}

func newIngestCmd(logger *slog.Logger) *cobra.Command {
	var (
		brand string
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Embed documents into a brand corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx, logger)
			if err != nil {
				return err
			}
			defer d.repo.Close()

			if _, err := d.brands.Get(brand); err != nil {
				return err
			}

			ingestor := services.NewIngestor(logger, d.repo, d.embedding)
			if reset {
				if err := ingestor.Reset(ctx, brand); err != nil {
					return fmt.Errorf("reset corpus: %w", err)
				}
				logger.Info("corpus reset", "brand", brand)
			}

			total := 0
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				source := filepath.Base(path)
				n, err := ingestor.Ingest(ctx, brand, source, string(content))
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				logger.Info("document ingested", "source", source, "chunks", n)
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks into brand %q\n", total, brand)
			return nil
		},
	}
	cmd.Flags().StringVar(&brand, "brand", "", "brand config name (required)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the existing corpus first")
	_ = cmd.MarkFlagRequired("brand")
	return cmd
}
