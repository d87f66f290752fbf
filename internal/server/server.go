package server

import (
	"clipboard-history/internal/logging"
	"clipboard-history/internal/metrics"
	"clipboard-history/internal/service"
	"clipboard-history/internal/storage"
	"clipboard-history/pkg/types"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DefaultPort is the loopback port of the local API
const DefaultPort = 54321

type Server struct {
	clipService *service.ClipboardService
	srv         *http.Server
	listener    net.Listener
	hub         *Hub
	pid         *pidFile
	config      Config
	log         *zap.Logger
	mu          sync.Mutex
}

type Config struct {
	Port int

	// PIDDir holds the single-instance PID file; empty disables the guard
	PIDDir string

	// Replace terminates a running instance instead of failing
	Replace bool
}

func New(clipService *service.ClipboardService, config Config) *Server {
	log := logging.Named("server")
	s := &Server{
		clipService: clipService,
		config:      config,
		hub:         newHub(log),
		log:         log,
	}
	go s.hub.run()
	clipService.RegisterHandler(s.hub)
	return s
}

// Handler returns the router serving the local API
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.handleStatus)
	r.Get("/ws", s.serveWs)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.handleGetItems)
			r.Delete("/", s.handleClearItems)
			r.Get("/search", s.handleSearch)
			r.Get("/recent", s.handleRecent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Delete("/", s.handleDeleteItem)
				r.Post("/copy", s.handleCopyItem)
				r.Put("/pin", s.handlePinItem)
			})
		})

		r.Get("/settings/max-items", s.handleGetMaxItems)
		r.Put("/settings/max-items", s.handleSetMaxItems)
		r.Get("/storage", s.handleStorage)
	})

	return r
}

// Start claims the PID file and begins serving on the loopback interface
func (s *Server) Start() error {
	if s.config.PIDDir != "" {
		pid, err := newPIDFile(s.config.PIDDir)
		if err != nil {
			return err
		}
		if err := pid.acquire(s.config.Replace); err != nil {
			return err
		}
		s.pid = pid
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.releasePID()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()

	s.log.Info("local API listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	defer s.releasePID()
	s.hub.stop()

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) releasePID() {
	if s.pid == nil {
		return
	}
	if err := s.pid.remove(); err != nil {
		s.log.Warn("failed to remove PID file", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *types.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func itemID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"addr":    s.Addr(),
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", storage.DefaultPageSize)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	items, err := s.clipService.Items(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	if err := s.clipService.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", storage.DefaultPageSize)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	items, err := s.clipService.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleRecent filters by ?date=YYYY-MM-DD when present, else by ?days (default 30)
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	var (
		items []*types.Item
		err   error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, perr := time.ParseInLocation("2006-01-02", raw, time.Local)
		if perr != nil {
			badRequest(w, fmt.Sprintf("invalid date %q", raw))
			return
		}
		items, err = s.clipService.FilterByDate(r.Context(), date)
	} else {
		days, perr := queryInt(r, "days", 30)
		if perr != nil {
			badRequest(w, perr.Error())
			return
		}
		items, err = s.clipService.FilterByDays(r.Context(), days)
	}

	if err != nil {
		var ce *service.ClipboardError
		if errors.As(err, &ce) && ce.Err == nil {
			badRequest(w, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	item, err := s.clipService.Item(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.clipService.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.clipService.Copy(r.Context(), id); err != nil {
		var ce *service.ClipboardError
		if errors.As(err, &ce) && ce.Err == nil {
			badRequest(w, err.Error())
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePinItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var body struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := s.clipService.SetPinned(r.Context(), id, body.Pinned); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMaxItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"max_items": s.clipService.MaxItems()})
}

func (s *Server) handleSetMaxItems(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MaxItems int `json:"max_items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := s.clipService.SetMaxItems(r.Context(), body.MaxItems); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"max_items": s.clipService.MaxItems()})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	info, err := s.clipService.StorageInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
