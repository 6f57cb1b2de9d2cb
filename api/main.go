package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/DeafMist/standards-desk/backend/internal/config"
	"github.com/DeafMist/standards-desk/backend/internal/elasticsearch"
	"github.com/DeafMist/standards-desk/backend/internal/importer"
	"github.com/DeafMist/standards-desk/backend/internal/logger"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := esClient.EnsureIndex(indexCtx); err != nil {
		// searches still work against a dynamic mapping
		log.Warn("ensure index", slog.Any("err", err))
	}
	cancel()

	srv := newServer(log, cfg, esClient)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// collectionStore is the slice of the Elasticsearch client the API needs.
type collectionStore interface {
	importer.Repository
	DeleteCollection(ctx context.Context, id string) error
	SearchCollections(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	store    collectionStore
	importer *importer.Service
	editor   *importer.Editor
}

func newServer(log *slog.Logger, cfg *config.API, store collectionStore) *server {
	svc := importer.NewService(store, log, cfg.KeywordLimit, cfg.KeywordMinLength)
	return &server{
		log:      log,
		cfg:      cfg,
		store:    store,
		importer: svc,
		editor:   importer.NewEditor(store, svc),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/standards", func(r chi.Router) {
		r.Get("/example", s.handleExample)
		r.Post("/parse", s.handleParse)
		r.Post("/import", s.handleImport)
		r.Get("/search", s.handleSearch)
	})

	r.Route("/collections/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetCollection)
		r.Delete("/", s.handleDeleteCollection)
		r.Post("/domains", s.handleAddDomain)
		r.Route("/domains/{domain}", func(r chi.Router) {
			r.Put("/", s.handleUpdateDomain)
			r.Delete("/", s.handleDeleteDomain)
			r.Post("/standards", s.handleAddStandard)
			r.Put("/standards/{code}", s.handleUpdateStandard)
			r.Delete("/standards/{code}", s.handleDeleteStandard)
		})
	})

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
