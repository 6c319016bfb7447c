package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chelsseeey/price-watcher/config"
	"github.com/chelsseeey/price-watcher/database"
	"github.com/chelsseeey/price-watcher/handlers"
	"github.com/chelsseeey/price-watcher/middleware"
	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/repository"
	"github.com/chelsseeey/price-watcher/scheduler"
	"github.com/chelsseeey/price-watcher/scraper"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const runRetention = 24 * time.Hour

// observationStore is both the write path of a run and the read path of the API
type observationStore interface {
	scheduler.ObservationStore
	handlers.ObservationReader
}

func main() {
	envErr := godotenv.Load()

	app := &cli.App{
		Name:  "price-watcher",
		Usage: "Collect listing prices across regions, devices and account states",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "catalog",
				Usage:   "Path to the site/profile/item catalog (YAML); the built-in catalog when empty",
				EnvVars: []string{"CATALOG_PATH"},
			},
		},
		Before: func(c *cli.Context) error {
			setupLogger(config.Load())
			if envErr != nil {
				log.Debug().Msg("No .env file found, using environment variables")
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			extractCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("price-watcher failed")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func loadCatalog(c *cli.Context, cfg *config.Config) (*config.Catalog, error) {
	catalog, err := config.LoadCatalog(c.String("catalog"))
	if err != nil {
		return nil, err
	}
	catalog.ApplyOverrides(cfg)
	return catalog, nil
}

// openStore returns the observation store selected by STORE_DRIVER and its close function
func openStore(cfg *config.Config) (observationStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreDriver {
	case "csv":
		log.Info().Str("dir", cfg.DataDir).Msg("📁 storing observations as CSV")
		return repository.NewCSVDataset(cfg.DataDir), noop, nil
	case database.DriverPostgres, database.DriverSQLite:
		dsn := cfg.DatabaseURL
		if cfg.StoreDriver == database.DriverSQLite {
			dsn = cfg.SQLitePath
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, noop, err
			}
		}
		db, err := database.Open(cfg.StoreDriver, dsn)
		if err != nil {
			return nil, noop, err
		}
		if err := database.CreateTables(db, cfg.StoreDriver); err != nil {
			db.Close()
			return nil, noop, err
		}
		return repository.NewObservationRepository(db, cfg.StoreDriver), db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown STORE_DRIVER %q (csv, postgres or sqlite)", cfg.StoreDriver)
	}
}

func newOrchestrator(ctx context.Context, cfg *config.Config) *scraper.Orchestrator {
	var ocr *scraper.OCRFallback
	if cfg.OCRServiceURL != "" {
		client := scraper.NewHTTPOCRClient(cfg.OCRServiceURL)
		if err := client.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ OCR service not reachable, fallback may fail")
		}
		ocr = &scraper.OCRFallback{Client: client, Lang: cfg.OCRLang}
	}

	o := scraper.NewOrchestrator(ocr, scraper.NewDirArtifactSink(cfg.ArtifactsDir))
	o.Retry = cfg.Retry()
	o.ReadyInterval = cfg.ReadyInterval
	return o
}

func newRunManager(ctx context.Context, cfg *config.Config, catalog *config.Catalog, store scheduler.ObservationStore) *scheduler.RunManager {
	coord := scheduler.NewCoordinator(scraper.NewRodSessionFactory(cfg.Browser()), newOrchestrator(ctx, cfg), store)
	coord.MaxConcurrency = cfg.MaxConcurrency
	coord.Serial = cfg.Serial
	coord.StartInterval = cfg.TaskStartInterval
	return scheduler.NewRunManager(scheduler.NewRunStore(), catalog, coord)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and collect on the cron schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-schedule",
				Usage: "Only serve the API; runs are started through it",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			catalog, err := loadCatalog(c, cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := newRunManager(ctx, cfg, catalog, store)
			h := handlers.NewHandlers(manager, store, catalog)

			r := mux.NewRouter()
			r.Use(middleware.LoggingMiddleware(log.Logger))
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.TrustProxy))
			r.Use(middleware.APIKeyMiddleware(cfg.APIKey))
			h.Register(r)

			corsHandler := cors.New(cors.Options{
				AllowedOrigins: cfg.AllowedOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			})

			if !c.Bool("no-schedule") {
				collector := scheduler.NewCollectionScheduler(cfg.ScheduleSpec, manager.RunNow)
				if err := collector.Start(); err != nil {
					return fmt.Errorf("invalid SCHEDULE_SPEC %q: %w", cfg.ScheduleSpec, err)
				}
				defer collector.Stop()
			}

			go func() {
				ticker := time.NewTicker(time.Hour)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						manager.Store().CleanupFinished(runRetention)
					}
				}
			}()

			server := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           corsHandler.Handler(r),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", server.Addr).Int("sites", len(catalog.Sites)).Msg("🌐 Server starting")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Info().Msg("🛑 shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Server shutdown failed")
				}
			}
			manager.Wait()
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one collection pass and exit",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "site", Aliases: []string{"s"}, Usage: "Limit the pass to these sites"},
			&cli.StringSliceFlag{Name: "profile", Aliases: []string{"p"}, Usage: "Limit the pass to these profile IDs"},
			&cli.StringSliceFlag{Name: "item", Aliases: []string{"i"}, Usage: "Limit the pass to these item IDs"},
			&cli.BoolFlag{Name: "serial", Usage: "Run one task at a time"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			catalog, err := loadCatalog(c, cfg)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := models.RunRequest{
				Sites:    c.StringSlice("site"),
				Profiles: c.StringSlice("profile"),
				Items:    c.StringSlice("item"),
				Serial:   c.Bool("serial"),
			}
			summary, err := newRunManager(ctx, cfg, catalog, store).RunNow(ctx, req)
			if summary != nil {
				printJSON(summary)
			}
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d tasks failed", summary.Failed, summary.Total), 1)
			}
			return nil
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Re-run the strategy chain over a saved HTML snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "site", Required: true, Usage: "Catalog site whose selectors to use"},
			&cli.StringFlag{Name: "html", Required: true, Usage: "Path to the saved HTML"},
			&cli.StringFlag{Name: "url", Usage: "URL the snapshot was taken from (item and meta come from it)"},
			&cli.StringFlag{Name: "profile", Usage: "Profile ID labelling the observation; the first catalog profile when empty"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			catalog, err := loadCatalog(c, cfg)
			if err != nil {
				return err
			}
			site, ok := catalog.Site(c.String("site"))
			if !ok {
				return fmt.Errorf("site %q not in catalog", c.String("site"))
			}
			profile := catalog.Profiles[0]
			if key := c.String("profile"); key != "" {
				if profile, ok = catalog.Profile(key); !ok {
					return fmt.Errorf("profile %q not in catalog", key)
				}
			}

			html, err := os.ReadFile(c.String("html"))
			if err != nil {
				return err
			}
			pageURL := c.String("url")
			if pageURL == "" {
				abs, err := filepath.Abs(c.String("html"))
				if err != nil {
					return err
				}
				pageURL = "file://" + filepath.ToSlash(abs)
			}
			page, err := scraper.NewStaticPage(pageURL, string(html))
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", c.String("html"), err)
			}
			strategy, err := scraper.NewSiteStrategy(site)
			if err != nil {
				return err
			}

			o := scraper.NewOrchestrator(nil, nil)
			o.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

			obs, err := o.Extract(c.Context, page, strategy, profile, models.TargetItem{Site: site.Name, URL: pageURL})
			if err != nil {
				return err
			}
			printJSON(obs)
			return nil
		},
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
