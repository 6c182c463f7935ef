package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/ferrisdoc/internal/analyze"
	"github.com/jcdickinson/ferrisdoc/internal/cas"
	"github.com/jcdickinson/ferrisdoc/internal/config"
	md "github.com/jcdickinson/ferrisdoc/internal/markdown"
	"github.com/jcdickinson/ferrisdoc/internal/model"
	"github.com/jcdickinson/ferrisdoc/internal/rpc"
	"github.com/jcdickinson/ferrisdoc/internal/store"
)

type Server struct {
	cfg        *config.Config
	memo       *cas.Store
	logger     *slog.Logger
	socketPath string
	httpServer *http.Server
	listener   net.Listener

	mu         sync.Mutex
	expTimer   *time.Timer
	expiration time.Duration

	analyzeGroup singleflight.Group

	storesMu sync.Mutex
	stores   map[string]*store.Store

	// exit terminates the process after a shutdown request or expiry.
	exit func(code int)
}

func NewServer(cfg *config.Config, socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		socketPath: socketPath,
		expiration: cfg.DaemonExpiration(),
		stores:     make(map[string]*store.Store),
		exit:       os.Exit,
	}
	if cfg.Memo.Enabled {
		s.memo = cas.New(config.MemoDir())
	}
	return s
}

// Handler returns the daemon's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.withExpReset(s.handleAnalyze))
	mux.HandleFunc("POST /load", s.withExpReset(s.handleLoad))
	mux.HandleFunc("GET /status", s.withExpReset(s.handleStatus))
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	s.logger.Info("daemon listening", "socket", s.socketPath, "expiration", s.expiration)

	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	s.mu.Lock()
	if s.expTimer != nil {
		s.expTimer.Stop()
	}
	s.mu.Unlock()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("listener close error", "error", err)
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("socket remove error", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) expire() {
	s.logger.Info("expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.exit(0)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

// storeFor returns the shared store for a cache root, opening it on first
// use. Each store keeps its own read cache.
func (s *Server) storeFor(output string) (*store.Store, error) {
	root := output
	if root == "" {
		root = s.cfg.CacheDir
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	s.storesMu.Lock()
	defer s.storesMu.Unlock()
	if st, ok := s.stores[root]; ok {
		return st, nil
	}
	st, err := store.Open(root, store.WithReadCache(s.cfg.Store.ReadCacheEntries))
	if err != nil {
		return nil, err
	}
	s.stores[root] = st
	return st, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req rpc.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Package == "" {
		writeError(w, http.StatusBadRequest, "missing package")
		return
	}
	pkg, err := filepath.Abs(req.Package)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.storeFor(req.Output)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Singleflight: concurrent requests for the same package and cache share
	// one run.
	key := pkg + "\x00" + st.Root()
	v, err, shared := s.analyzeGroup.Do(key, func() (interface{}, error) {
		return analyze.Run(context.WithoutCancel(r.Context()), pkg, st, analyze.Options{
			Logger: s.logger,
			Memo:   s.memo,
		})
	})
	if err != nil {
		s.logger.Error("analysis failed", "package", pkg, "error", err)
		writeAnalysisError(w, err)
		return
	}
	if shared {
		s.logger.Debug("analysis shared with a concurrent request", "package", pkg)
	}

	sum := v.(*analyze.Summary)
	writeJSON(w, http.StatusOK, rpc.AnalyzeResponse{
		Crate:     sum.Crate,
		Modules:   sum.Modules,
		Structs:   sum.Structs,
		Enums:     sum.Enums,
		Functions: sum.Functions,
		Written:   sum.Written,
	})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req rpc.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := model.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch store.Mode(req.Mode) {
	case "", store.One, store.Children, store.Descendants, store.Prefix:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	st, err := s.storeFor(req.Output)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items, err := st.Load(cat, store.Query{
		Mode:        store.Mode(req.Mode),
		Path:        model.ParsePath(req.Path),
		Prefix:      req.Prefix,
		IncludeSelf: req.IncludeSelf,
	})
	if err != nil {
		writeAnalysisError(w, err)
		return
	}

	resp := rpc.LoadResponse{Items: make([]json.RawMessage, 0, len(items))}
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Items = append(resp.Items, data)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.storeFor(r.URL.Query().Get("output"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status, err := StatusOf(st)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		s.exit(0)
	}()
}

// StatusOf summarizes every crate stored in st.
func StatusOf(st *store.Store) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{CacheDir: st.Root(), Crates: []rpc.CrateStatus{}}

	crates, err := st.Paths(model.Crates)
	if err != nil {
		return nil, err
	}
	counts := map[model.Category][]model.Path{}
	for _, cat := range []model.Category{model.Modules, model.Structs, model.Enums, model.Functions} {
		if counts[cat], err = st.Paths(cat); err != nil {
			return nil, err
		}
	}
	count := func(cat model.Category, root model.Path) int {
		n := 0
		for _, p := range counts[cat] {
			if p.HasPrefix(root) {
				n++
			}
		}
		return n
	}

	for _, p := range crates {
		c, err := store.LoadOne[model.Crate](st, model.Crates, p)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		root := c.FullPath()
		resp.Crates = append(resp.Crates, rpc.CrateStatus{
			Name:      c.Name,
			Version:   c.Version,
			Summary:   md.Summary(c.Docstring),
			Modules:   count(model.Modules, root),
			Structs:   count(model.Structs, root),
			Enums:     count(model.Enums, root),
			Functions: count(model.Functions, root),
		})
	}
	return resp, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, rpc.ErrorResponse{Error: msg})
}

// writeAnalysisError maps the analysis error taxonomy onto HTTP statuses.
func writeAnalysisError(w http.ResponseWriter, err error) {
	var (
		cerr    *analyze.ConfigError
		perr    *analyze.ParseError
		corrupt *store.CorruptError
	)
	switch {
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusBadRequest, rpc.ErrorResponse{Error: err.Error(), Kind: "config"})
	case errors.As(err, &perr):
		writeJSON(w, http.StatusUnprocessableEntity, rpc.ErrorResponse{Error: err.Error(), Kind: "parse"})
	case errors.As(err, &corrupt):
		writeJSON(w, http.StatusInternalServerError, rpc.ErrorResponse{Error: err.Error(), Kind: "corrupt"})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
