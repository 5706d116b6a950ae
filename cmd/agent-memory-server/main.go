// Command agent-memory-server runs the HTTP adapter over the recall and
// lifecycle engine: storage, embedding, reranking, and event broadcast are
// all wired here once at startup, then handed to httpapi.Server.
//
// Exit codes: 0 clean shutdown, 2 configuration error, 3 storage open or
// integrity failure, 4 a required secret (the Postgres DSN when the postgres
// backend is selected) is missing.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/asuman/agent-memory/internal/authkeys"
	"github.com/asuman/agent-memory/internal/config"
	"github.com/asuman/agent-memory/internal/connections"
	"github.com/asuman/agent-memory/internal/embedder"
	"github.com/asuman/agent-memory/internal/engine"
	"github.com/asuman/agent-memory/internal/events"
	"github.com/asuman/agent-memory/internal/httpapi"
	"github.com/asuman/agent-memory/internal/metrics"
	"github.com/asuman/agent-memory/internal/normtext"
	"github.com/asuman/agent-memory/internal/rerank"
)

func main() {
	os.Exit(run())
}

func run() int {
	overlayPath := flag.String("config", "", "path to a JSON config overlay file")
	flag.Parse()

	cfg, err := config.Load(*overlayPath)
	if err != nil {
		log.Printf("config: %v", err)
		return 2
	}

	dataDir, err := connections.ResolveDataDir()
	if err != nil {
		log.Printf("config: resolving data directory: %v", err)
		return 2
	}
	cfg.Storage.DataDir = dataDir

	handler, closeFn, exitCode := buildHandler(cfg)
	if handler == nil {
		return exitCode
	}
	defer closeFn()

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("agent-memory-server listening on %s", addr)
		serveErr <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: %v", err)
			return 3
		}
	case <-sigChan:
		log.Println("shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
	}

	return 0
}

// buildHandler wires storage, embedding, reranking, and the event hub into
// an httpapi.Server, returning the resulting http.Handler plus a cleanup
// closure. On failure it returns a nil handler and the exit code to use.
func buildHandler(cfg *config.Config) (http.Handler, func(), int) {
	if cfg.Storage.Backend == "postgres" && cfg.Storage.PostgresDSN == "" {
		log.Printf("config: postgres backend selected but POSTGRES_DSN is not set")
		return nil, nil, 4
	}

	pool, err := connections.NewStoragePool(cfg.Storage, cfg.Storage.DataDir)
	if err != nil {
		log.Printf("storage: %v", err)
		return nil, nil, 3
	}

	emb, err := embedder.New(cfg.Embed)
	if err != nil {
		log.Printf("embedder: %v", err)
		pool.Close()
		return nil, nil, 2
	}

	normalizer, err := normtext.NewDefaultNormalizer(nil)
	if err != nil {
		log.Printf("normtext: %v", err)
		emb.Close()
		pool.Close()
		return nil, nil, 2
	}

	reranker := rerank.NewFromPreset(cfg.Reranker.PrimaryModel, rerank.HTTPCrossEncoderConfig{
		Endpoint: cfg.Reranker.SecondaryEndpoint,
		APIKey:   cfg.Embed.APIKey,
		Model:    cfg.Reranker.SecondaryModel,
		Timeout:  10 * time.Second,
	}, cfg.Reranker)

	metricsHub := metrics.New()

	eventHub := events.NewHub()
	go eventHub.Run()

	keys, err := authkeys.Load(cfg.Security.KeysPath)
	if err != nil {
		log.Printf("authkeys: %v", err)
		eventHub.Stop()
		emb.Close()
		pool.Close()
		return nil, nil, 2
	}

	eng := engine.New(*cfg, pool, emb, normalizer, reranker, metricsHub, eventHub)
	api := httpapi.New(*cfg, eng, eventHub, keys)

	closeFn := func() {
		eventHub.Stop()
		emb.Close()
		pool.Close()
	}
	return api.Handler(), closeFn, 0
}
