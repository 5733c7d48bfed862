// Command mapserve serves the listing map over HTTP instead of writing it
// to a file. Every request re-reads the record store, so a scan running in
// another process shows up on the next refresh.
//
// Routes:
//
//	GET /              the Leaflet map page
//	GET /api/listings  all stored records as JSON
//	GET /healthz       liveness probe
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/jaimejim/home-search/internal/config"
	"github.com/jaimejim/home-search/internal/listing"
	"github.com/jaimejim/home-search/internal/maprender"
	"github.com/jaimejim/home-search/internal/storage"

	// register all storage backends with the factory.
	_ "github.com/jaimejim/home-search/internal/storage/all"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// server holds the request-time dependencies. Handlers read the store
// fresh on every request rather than caching rendered output.
type server struct {
	store    storage.Store
	renderer *maprender.Renderer
	logger   *log.Logger
}

func newServer(store storage.Store, renderer *maprender.Renderer, logger *log.Logger) *server {
	return &server{
		store:    store,
		renderer: renderer,
		logger:   logger,
	}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleMap).Methods(http.MethodGet)
	r.HandleFunc("/api/listings", s.handleListings).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return r
}

func (s *server) handleMap(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		s.logger.Printf("map: read store: %v", err)
		http.Error(w, "store read failed", http.StatusInternalServerError)
		return
	}

	html, stats, err := s.renderer.Render(records)
	if err != nil {
		s.logger.Printf("map: render: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	for _, label := range stats.Skipped {
		s.logger.Printf("map: skipping %s: no coordinates", label)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

func (s *server) handleListings(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		s.logger.Printf("listings: read store: %v", err)
		http.Error(w, "store read failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		// An empty store serves [], not null.
		records = []listing.Listing{}
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		s.logger.Printf("listings: encode: %v", err)
	}
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// run starts the server and blocks until the context is canceled or the
// listener fails.
//
// Exit codes:
//   - 0: clean shutdown.
//   - 1: the server failed while running.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	logger := log.New(stderr, "", log.LstdFlags)

	fs := flag.NewFlagSet("mapserve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", ":8080", "Listen address")
	csvPath := fs.String("csv", "properties.csv", "CSV store path (with -store csv)")
	storeKind := fs.String("store", "csv", "Record store backend (csv, sqlite, postgres, mssql)")
	storeDSN := fs.String("dsn", "", "Database DSN for SQL store backends")
	configPath := fs.String("config", "", "Optional YAML config path")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("%v", err)
		return 2
	}
	if set["store"] {
		cfg.Store.Kind = *storeKind
	}
	if set["csv"] {
		cfg.Store.Path = *csvPath
	}
	if set["dsn"] {
		cfg.Store.DSN = *storeDSN
	}

	hasError := false
	for _, iss := range config.Validate(cfg) {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		return 2
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Config{
		Kind: cfg.Store.Kind,
		Path: cfg.Store.Path,
		DSN:  cfg.Store.DSN,
	})
	if err != nil {
		logger.Printf("open store: %v", err)
		return 2
	}
	defer func() {
		_ = store.Close()
	}()

	renderer := maprender.New(maprender.Config{
		TileURL:     cfg.Tiles.URL,
		APIKey:      cfg.Tiles.APIKey,
		Attribution: cfg.Tiles.Attribution,
		MaxZoom:     cfg.Tiles.MaxZoom,
	})

	srv := newServer(store, renderer, logger)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Printf("listen: %v", err)
		return 2
	}

	httpSrv := &http.Server{
		Handler:           srv.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	logger.Printf("serving on http://%s", ln.Addr())

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			logger.Printf("shutdown: %v", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		logger.Printf("serve: %v", err)
		return 1
	}
}
