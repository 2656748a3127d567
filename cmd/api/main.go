package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/joho/godotenv"

	"github.com/mirrorwell/exhibit/backend/internal/config"
	"github.com/mirrorwell/exhibit/backend/internal/handler"
	motionhandler "github.com/mirrorwell/exhibit/backend/internal/handler/motion"
	personahandler "github.com/mirrorwell/exhibit/backend/internal/handler/persona"
	uploadhandler "github.com/mirrorwell/exhibit/backend/internal/handler/upload"
	personamodel "github.com/mirrorwell/exhibit/backend/internal/model/persona"
	"github.com/mirrorwell/exhibit/backend/internal/service/ai"
	"github.com/mirrorwell/exhibit/backend/internal/service/assets"
	"github.com/mirrorwell/exhibit/backend/internal/service/face"
	motionsvc "github.com/mirrorwell/exhibit/backend/internal/service/motion"
	personasvc "github.com/mirrorwell/exhibit/backend/internal/service/persona"
	relaysvc "github.com/mirrorwell/exhibit/backend/internal/service/relay"
	"github.com/mirrorwell/exhibit/backend/internal/service/session"
	"github.com/mirrorwell/exhibit/backend/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := personamodel.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("failed to open persona store: %v", err)
	}

	registry := session.NewRegistry()
	cache := assets.NewCache()

	hub := relaysvc.NewHub(registry, cfg.Relay.AutoresetDelay)
	hub.OnSessionEnd = func(room, sessionID string) {
		cache.Forget(sessionID)
	}

	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - check Ark environment variables")
			aiSvc = nil
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark credentials not configured, skipping AI initialization")
	}

	var embedder embedding.Embedder
	if cfg.AI.EmbeddingEnabled() {
		embedder, err = cfg.AI.NewEmbedder(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize embedder: %v", err)
			embedder = nil
		} else {
			log.Println("Embedding service initialized successfully")
		}
	} else {
		log.Println("Embedding model not configured, motion matching limited to cached vectors")
	}

	corpus := motionsvc.NewCorpus(cfg.Storage.CorpusPath, cfg.Storage.CorpusFallbackPath, embedder)
	utils.SpawnBackground("corpus-warmup", cfg.AI.Timeout, corpus.EnsureEmbeddings)

	var generator personasvc.Generator
	var chatter personahandler.Chatter
	var reactor motionhandler.Reactor
	var patcher personasvc.Patcher
	if aiSvc != nil {
		generator = aiSvc
		chatter = aiSvc
		reactor = aiSvc
		patcher = aiSvc
	}

	builder := personasvc.NewBuilder(cache, store, generator, cfg.AI.Timeout)
	evolver := personasvc.NewEvolver(store, patcher, cfg.AI.Timeout)

	var faces uploadhandler.Identifier
	if cfg.Face.Enabled() {
		faces = face.NewClient(cfg.Face.BaseURL, cfg.Face.Timeout)
		log.Printf("Face server configured at %s", cfg.Face.BaseURL)
	} else {
		log.Println("Face server not configured, uploads get synthetic face ids")
	}

	router := handler.NewRouter(handler.Deps{
		Registry:  registry,
		Cache:     cache,
		Store:     store,
		Builder:   builder,
		Evolver:   evolver,
		Corpus:    corpus,
		Hub:       hub,
		Faces:     faces,
		Chatter:   chatter,
		Reactor:   reactor,
		UploadDir: cfg.Storage.UploadDir,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Exhibit backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
