// Package main is the pixseek CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/cache"
	"github.com/pixseek/pixseek/internal/catalog"
	"github.com/pixseek/pixseek/internal/config"
	"github.com/pixseek/pixseek/internal/embedding"
	"github.com/pixseek/pixseek/internal/events"
	"github.com/pixseek/pixseek/internal/fetch"
	"github.com/pixseek/pixseek/internal/index"
	"github.com/pixseek/pixseek/internal/persist"
	"github.com/pixseek/pixseek/internal/server"
	"github.com/pixseek/pixseek/internal/vector"
	"github.com/pixseek/pixseek/internal/watcher"
	"github.com/pixseek/pixseek/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/pixseek/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "rebuild":
		runRebuild()
	case "add":
		runAdd()
	case "remove":
		runRemove()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("pixseek version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline := events.NewPipeline(components.Manager, 256, logger)
	pipeline.Start(runCtx)

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) { dropAdd(runCtx, components, pipeline, logger, path) },
			func(path string) { dropRemove(runCtx, components, pipeline, logger, path) },
			logger,
		)
		if err := watchSvc.Start(runCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(components.Manager, components.Catalog, pipeline, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	pipeline.Stop()
	cancel()
	ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Stop(ctx)
}

// dropAdd registers a photo that appeared in a drop directory. Files already
// in the catalog are left alone.
func dropAdd(ctx context.Context, c *Components, pipeline *events.Pipeline, logger *zap.Logger, path string) {
	if _, err := c.Catalog.GetBySourceURI(ctx, path); err == nil {
		return
	}
	photo := &catalog.Photo{
		SourceURI: path,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Public:    true,
	}
	if err := c.Catalog.Create(ctx, photo); err != nil {
		logger.Warn("drop add failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := pipeline.Publish(events.Event{
		Kind:   events.KindItemCreated,
		Record: catalog.PhotoRecord(photo),
	}); err != nil {
		logger.Warn("drop add event dropped", zap.String("path", path), zap.Error(err))
	}
}

// dropRemove unregisters a photo whose file disappeared from a drop directory.
func dropRemove(ctx context.Context, c *Components, pipeline *events.Pipeline, logger *zap.Logger, path string) {
	photo, err := c.Catalog.GetBySourceURI(ctx, path)
	if err != nil {
		return
	}
	if err := c.Catalog.Delete(ctx, photo.ID); err != nil {
		logger.Warn("drop remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	if err := pipeline.Publish(events.Event{
		Kind:   events.KindItemDeleted,
		ItemID: photo.ID,
	}); err != nil {
		logger.Warn("drop remove event dropped", zap.String("path", path), zap.Error(err))
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = search the local index directly)")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: pixseek search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: pixseek search [flags] <query>")
		os.Exit(1)
	}

	var results []index.Result
	if *serverURL != "" {
		res, err := searchViaHTTP(*serverURL, query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		results = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		k := *topK
		if k <= 0 {
			k = cfg.Search.DefaultTopK
		}
		results, err = components.Manager.SearchByText(context.Background(), query, k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		for i, r := range results {
			title := r.Record.Title
			if title == "" {
				title = r.Record.SourceURI
			}
			fmt.Printf("%2d. %.4f  %s\n", i+1, r.Score, title)
			if r.Record.Title != "" {
				fmt.Printf("          %s\n", r.Record.SourceURI)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, topK int) ([]index.Result, error) {
	body, err := json.Marshal(map[string]any{"query": query, "top_k": topK})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search/text", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response struct {
		Results []index.Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return response.Results, nil
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Manager.Build(context.Background(), catalog.NewPager(components.Catalog, 500))
	if err != nil {
		fmt.Printf("Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d photo(s)\n", report.Indexed)
	for _, id := range report.Failed {
		fmt.Printf("  failed: %s\n", id)
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	title := fs.String("title", "", "photo title")
	owner := fs.String("owner", "", "photo owner")
	private := fs.Bool("private", false, "register as private (not searchable)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: pixseek add [flags] <file-or-url>")
		os.Exit(1)
	}
	source := fs.Arg(0)
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		if abs, err := filepath.Abs(source); err == nil {
			source = abs
		}
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	photo := &catalog.Photo{
		SourceURI: source,
		Title:     *title,
		Owner:     *owner,
		Public:    !*private,
	}
	if err := components.Catalog.Create(ctx, photo); err != nil {
		fmt.Printf("Failed to register photo: %v\n", err)
		os.Exit(1)
	}
	if err := components.Manager.OnItemCreated(ctx, catalog.PhotoRecord(photo)); err != nil {
		fmt.Printf("Registered %s but indexing failed: %v\n", photo.ID, err)
		os.Exit(1)
	}
	fmt.Printf("Photo added: %s\n", photo.ID)
}

func runRemove() {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: pixseek remove [flags] <photo-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Catalog.Delete(ctx, id); err != nil {
		fmt.Printf("Failed to remove photo: %v\n", err)
		os.Exit(1)
	}
	if err := components.Manager.OnItemDeleted(ctx, id); err != nil {
		fmt.Printf("Removed from catalog but index update failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Photo removed: %s\n", id)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read local state)")
	_ = fs.Parse(os.Args[2:])

	var status map[string]any
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		count, err := components.Catalog.CountPublic(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
			os.Exit(1)
		}
		status = map[string]any{
			"state":         string(components.Manager.State()),
			"indexed_items": components.Manager.Count(),
			"public_photos": count,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

// Components holds initialized services.
type Components struct {
	Catalog  *catalog.Catalog
	Embedder embedding.Embedder
	Manager  *index.Manager
}

func (c *Components) Close() {
	if c.Manager != nil {
		_ = c.Manager.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	cat, err := catalog.Open(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	var embedder embedding.Embedder
	clip, err := embedding.NewCLIPEmbedder(
		cfg.Embedding.TextModelPath,
		cfg.Embedding.ImageModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("CLIP embedder unavailable, using mock embeddings", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = clip
	}

	opts := []index.Option{index.WithLogger(logger)}
	if cfg.Cache.EnabledOrDefault() {
		opts = append(opts, index.WithQueryCache(cache.New(cfg.Cache.TTL)))
	}

	manager, err := index.NewManager(
		embedder,
		fetch.NewFetcher(0),
		persist.Paths{
			IndexPath:   cfg.Storage.IndexPath,
			RecordsPath: cfg.Storage.RecordsPath,
			BackupPath:  cfg.Storage.BackupPath,
		},
		cfg.Index.Type,
		vector.Metric(cfg.Index.Metric),
		opts...,
	)
	if err != nil {
		cat.Close()
		embedder.Close()
		return nil, fmt.Errorf("failed to initialize index manager: %w", err)
	}
	if err := manager.Load(context.Background()); err != nil {
		cat.Close()
		embedder.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	logger.Info("index manager initialized",
		zap.String("state", string(manager.State())),
		zap.Int("items", manager.Count()),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	return &Components{Catalog: cat, Embedder: embedder, Manager: manager}, nil
}

func printUsage() {
	fmt.Println(`pixseek - photo similarity search

Usage:
  pixseek server [flags]           Start the HTTP server
  pixseek search [flags] <query>   Search photos by text
  pixseek add [flags] <file|url>   Register and index a photo
  pixseek remove [flags] <id>      Remove a photo
  pixseek rebuild [flags]          Rebuild the index from the catalog
  pixseek status [flags]           Show index status
  pixseek version                  Show version
  pixseek help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pixseek/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search the local index directly.
  --top-k int        Number of results
  --output string    Output format: text or json (default: text)

Add Flags:
  --title string     Photo title
  --owner string     Photo owner
  --private          Register as private (not searchable)

Examples:
  pixseek server
  pixseek search sunset over water
  pixseek search --output json --top-k 5 "red bicycle"
  pixseek add --title "Harbor at dusk" ~/Pictures/harbor.jpg
  pixseek remove 7f0c2a
  pixseek rebuild
  pixseek status`)
}
