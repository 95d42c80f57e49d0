// Package main is the Miru CLI entry point.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mirusearch/miru/internal/config"
	"github.com/mirusearch/miru/internal/embedding"
	"github.com/mirusearch/miru/internal/index"
	"github.com/mirusearch/miru/internal/indexer"
	"github.com/mirusearch/miru/internal/keyword"
	"github.com/mirusearch/miru/internal/models"
	"github.com/mirusearch/miru/internal/search"
	"github.com/mirusearch/miru/internal/server"
	"github.com/mirusearch/miru/internal/session"
	"github.com/mirusearch/miru/internal/storage"
	"github.com/mirusearch/miru/internal/watcher"
	"github.com/mirusearch/miru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/miru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "miru server" from the project dir uses the project's
// config. Returns the config and the path that was actually loaded.
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
	case "index":
		runIndex()
	case "search":
		runSearch()
	case "feedback":
		runFeedback()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("miru version %s\n", version)
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

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Index.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
		logger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		idx := components.Indexer
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				root := rootFor(cfg.Watch.Directories, path)
				if err := idx.IndexFile(context.Background(), root, path); err != nil {
					logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := idx.RemoveFile(context.Background(), path); err != nil {
					logger.Warn("watch remove file failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(components.Service, components.Captions, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// rootFor returns the watch root containing path, or the path's directory when
// none matches.
func rootFor(roots []string, path string) string {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return root
		}
	}
	return filepath.Dir(path)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	data := fs.String("data", "", "image corpus root directory")
	limit := fs.Int("limit", 0, "limit number of images to process (0 = all)")
	dryRun := fs.Bool("dry-run", false, "run the pipeline without writing to any backend")
	detailed := fs.Bool("detailed-metadata", false, "extract detailed metadata (10 questions per image, slower)")
	_ = fs.Parse(os.Args[2:])

	root := *data
	if root == "" && fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	if root == "" {
		fmt.Println("Usage: miru index --data <directory> [--limit N] [--dry-run] [--detailed-metadata]")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *detailed {
		cfg.Indexing.DetailedMetadata = true
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if !*dryRun {
		if err := components.Index.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
			logger.Fatal("Failed to ensure collection", zap.Error(err))
		}
	}

	report, err := components.Indexer.IndexCorpus(ctx, root, indexer.Options{
		Limit:  *limit,
		DryRun: *dryRun,
	})
	if err != nil {
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Scanned %d, indexed %d, skipped %d, failed %d, removed %d\n",
		report.Scanned, report.Indexed, report.Skipped, report.Failed, report.Removed)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	sessionID := fs.String("session", "cli", "session id")
	userID := fs.String("user", "", "user id")
	topK := fs.Int("top-k", 0, "number of results")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: miru search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: miru search [flags] <query>")
		os.Exit(1)
	}

	req := &models.SearchRequest{
		SessionID: *sessionID,
		UserID:    *userID,
		QueryText: query,
		TopK:      *topK,
	}
	var resp models.SearchResponse
	if err := postViaHTTP(*serverURL+"/api/v1/search", req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	printResults(resp.Results)
}

func runFeedback() {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	sessionID := fs.String("session", "cli", "session id")
	liked := fs.String("liked", "", "comma-separated liked item ids")
	disliked := fs.String("disliked", "", "comma-separated disliked item ids")
	alpha := fs.Float64("alpha", 0, "blend factor toward this turn's signal (unset = server default)")
	topK := fs.Int("top-k", 0, "number of results")
	_ = fs.Parse(os.Args[2:])

	// Only send alpha when the flag was given, so an explicit 0 reaches the
	// server while an omitted flag leaves the server default in effect.
	var alphaArg *float64
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "alpha" {
			alphaArg = alpha
		}
	})

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	req := &models.FeedbackRequest{
		SessionID:    *sessionID,
		FeedbackText: text,
		LikedIDs:     splitIDs(*liked),
		DislikedIDs:  splitIDs(*disliked),
		Alpha:        alphaArg,
		TopK:         *topK,
	}
	var resp models.FeedbackResponse
	if err := postViaHTTP(*serverURL+"/api/v1/feedback", req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Feedback failed: %v\n", err)
		os.Exit(1)
	}
	printResults(resp.Results)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/stats")
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
	var stats search.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
		os.Exit(1)
	}
	if *outputFormat == "json" {
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Printf("Indexed items: %d\nVector dimensions: %d\n", stats.TotalItems, stats.Dimensions)
}

func postViaHTTP(url string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpResp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(b))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printResults(results []*models.RankedItem) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		file, species := "", ""
		if r.Attributes != nil {
			file, species = r.Attributes.File, r.Attributes.Species
		}
		fmt.Printf("%2d. %-40s score=%.4f species=%s id=%s\n", i+1, file, r.Score, species, r.ID)
	}
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Index    index.SearchIndex
	Sessions session.Store
	Catalog  storage.Catalog
	Captions keyword.CaptionIndex
	Service  *search.Service
	Indexer  *indexer.Indexer
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Sessions != nil {
		_ = c.Sessions.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Captions != nil {
		_ = c.Captions.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	var embedder embedding.Embedder
	var captioner embedding.Captioner
	if cfg.Embedding.BaseURL != "" {
		client, err := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.Dimensions,
			embedding.WithAPIKey(cfg.Embedding.APIKey),
			embedding.WithTimeout(cfg.Embedding.Timeout),
			embedding.WithRetries(cfg.Embedding.Retries),
			embedding.WithCacheSize(cfg.Embedding.CacheSize),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
		}
		embedder = client
		captioner = client
	} else {
		logger.Warn("no embedding base_url configured, using mock embedder")
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	var searchIndex index.SearchIndex
	if cfg.Qdrant.URL != "" {
		qdrantIndex, err := index.NewQdrantIndex(index.QdrantConfig{
			URL:        cfg.Qdrant.URL,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		searchIndex = qdrantIndex
	} else {
		logger.Warn("no qdrant url configured, using in-memory index")
		memIndex, err := index.NewMemoryIndex(cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		searchIndex = memIndex
	}

	var sessions session.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		sessions = session.NewRedisStore(client, cfg.Redis.SessionTTL)
	} else {
		logger.Warn("no redis addr configured, using in-memory session store")
		sessions = session.NewMemoryStore()
	}

	catalog, err := storage.NewSQLiteCatalog(cfg.Indexing.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	captions, err := keyword.NewBleveIndex(cfg.Indexing.CaptionIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize caption index: %w", err)
	}

	service := search.NewService(embedder, searchIndex, sessions, logger)

	idxOpts := []indexer.Option{}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	if captioner != nil {
		idxOpts = append(idxOpts, indexer.WithCaptioner(captioner))
	}
	idx := indexer.NewIndexer(embedder, searchIndex, catalog, captions, &cfg.Indexing, idxOpts...)

	return &Components{
		Embedder: embedder,
		Index:    searchIndex,
		Sessions: sessions,
		Catalog:  catalog,
		Captions: captions,
		Service:  service,
		Indexer:  idx,
	}, nil
}

func printUsage() {
	fmt.Println(`miru - image retrieval with relevance feedback

Usage:
  miru server [flags]             Start the HTTP server
  miru index [flags]              Index an image corpus
  miru search [flags] <query>     Search via the HTTP API
  miru feedback [flags] [text]    Send relevance feedback for a session
  miru status [flags]             Show index status
  miru version                    Show version
  miru help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/miru/config.yaml)
  --debug            Enable debug logging

Index Flags:
  --config string        Config file path
  --data string          Image corpus root directory
  --limit int            Limit number of images to process (0 = all)
  --dry-run              Run the pipeline without writing to any backend
  --detailed-metadata    Extract detailed metadata (10 questions per image, slower)

Search Flags:
  --server string    Server URL (default: http://localhost:8080)
  --session string   Session id (default: cli)
  --user string      User id
  --top-k int        Number of results

Feedback Flags:
  --server string      Server URL (default: http://localhost:8080)
  --session string     Session id (default: cli)
  --liked string       Comma-separated liked item ids
  --disliked string    Comma-separated disliked item ids
  --alpha float        Blend factor toward this turn's signal
  --top-k int          Number of results

Examples:
  miru server
  miru index --data ./corpus --detailed-metadata
  miru search "a sleeping cat"
  miru feedback --liked id1,id2 more orange
  miru status --output json`)
}
