// Package api serves levels and their derived layouts over HTTP.
// GET endpoints are public (renderers and editors read from them).
// Mutating endpoints require a bearer token (editor control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/talgya/system-tactics/internal/camera"
	"github.com/talgya/system-tactics/internal/geometry"
	"github.com/talgya/system-tactics/internal/hexgrid"
	"github.com/talgya/system-tactics/internal/level"
	"github.com/talgya/system-tactics/internal/persistence"
)

// Server serves the level catalog over HTTP.
type Server struct {
	Catalog     *level.Catalog
	Layout      hexgrid.Layout
	DB          *persistence.DB // Optional; edits are persisted when set
	Addr        string
	AdminKey    string   // Bearer token for mutating endpoints. Empty = mutations disabled.
	CORSOrigins []string // Allowed browser origins in addition to localhost dev servers
	Limiter     *RateLimiter

	ReadTimeout  time.Duration // 15s when zero
	WriteTimeout time.Duration // 15s when zero

	mu      sync.RWMutex // guards Catalog and the levels in it
	hub     *Hub
	once    sync.Once
	handler http.Handler
	httpSrv *http.Server
	started time.Time
}

// Handler returns the router, building it on first use.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		s.started = time.Now()
		s.hub = NewHub(s.originAllowed)
		s.handler = s.routes()
	})
	return s.handler
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:         s.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  orDefault(s.ReadTimeout, 15*time.Second),
		WriteTimeout: orDefault(s.WriteTimeout, 15*time.Second),
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "store", s.DB != nil)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and disconnects watchers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/watch", s.hub.ServeHTTP)

		r.Get("/levels", s.handleLevels)
		r.With(s.adminOnly).Post("/levels", s.handleCreateLevel)
		r.With(s.adminOnly).Post("/levels/current", s.handleSelectLevel)

		r.Route("/levels/{name}", func(r chi.Router) {
			r.Get("/", s.handleLevel)
			r.Get("/layout", s.handleLayout)
			r.Get("/camera", s.handleCamera)
			r.Get("/cells/{row}/{col}", s.handleCell)
			r.With(s.adminOnly).Put("/cells/{row}/{col}", s.handleSetHeight)
		})
	})

	return s.cors().Handler(r)
}

// cors allows the configured origins plus localhost dev servers.
func (s *Server) cors() *cors.Cors {
	origins := append([]string{
		"http://localhost:5173",
		"http://localhost:4173",
		"http://localhost:3000",
	}, s.CORSOrigins...)

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || strings.HasPrefix(origin, "http://localhost:") {
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the admin bearer token and applies the rate limiter.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	limited := next
	if s.Limiter != nil {
		limited = s.Limiter.Middleware(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "editing disabled (no TACTICS_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	store := "none"
	if s.DB != nil {
		store = "ok"
		if err := s.DB.Ping(); err != nil {
			slog.Warn("store ping failed", "error", err)
			store = "unreachable"
		}
	}

	s.mu.RLock()
	current := s.Catalog.Current()
	status := map[string]any{
		"name":          "System Tactics",
		"levels":        s.Catalog.Len(),
		"current_level": current.Name(),
		"orientation":   s.Layout.Orientation.String(),
		"cell_radius":   s.Layout.CellRadius,
		"watchers":      s.hub.Count(),
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"store":         store,
	}
	s.mu.RUnlock()
	writeJSON(w, status)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	type levelSummary struct {
		Name      string `json:"name"`
		Rows      int    `json:"rows"`
		Columns   int    `json:"columns"`
		MaxHeight uint32 `json:"max_height"`
		Current   bool   `json:"current"`
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.Catalog.Current().Name()
	out := make([]levelSummary, 0, s.Catalog.Len())
	for _, l := range s.Catalog.Levels() {
		out = append(out, levelSummary{
			Name:      l.Name(),
			Rows:      l.Rows(),
			Columns:   l.Columns(),
			MaxHeight: l.MaxHeight(),
			Current:   l.Name() == current,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lvl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, lvl)
}

// handleLayout returns every cell's placement. Meshes are listed once per
// distinct height and referenced from cells by key.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	type cellEntry struct {
		Q        int           `json:"q"`
		R        int           `json:"r"`
		Row      int           `json:"row"`
		Col      int           `json:"col"`
		Height   uint32        `json:"height"`
		Position geometry.Vec3 `json:"position"`
		Mesh     string        `json:"mesh"`
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lvl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	cells, err := geometry.GenerateLevelLayout(lvl, s.Layout)
	if err != nil {
		writeError(w, err)
		return
	}

	meshes := make(map[string]*geometry.ColumnMesh)
	entries := make([]cellEntry, len(cells))
	for i, c := range cells {
		key := strconv.FormatUint(uint64(c.Height), 10)
		meshes[key] = c.Mesh
		entries[i] = cellEntry{
			Q:        c.Coord.Q,
			R:        c.Coord.R,
			Row:      c.Row,
			Col:      c.Col,
			Height:   c.Height,
			Position: c.Position,
			Mesh:     key,
		}
	}

	writeJSON(w, map[string]any{
		"level":   lvl.Name(),
		"rows":    lvl.Rows(),
		"columns": lvl.Columns(),
		"layout":  s.Layout,
		"bounds":  geometry.WorldBounds(lvl, s.Layout),
		"meshes":  meshes,
		"cells":   entries,
	})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vp := camera.Viewport{
		Width:  float32(queryFloat(q, "width", 1280)),
		Height: float32(queryFloat(q, "height", 720)),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lvl, ok := s.lookup(w, r)
	if !ok {
		return
	}

	state := camera.Default()
	state.Yaw = queryFloat(q, "yaw", camera.DefaultYaw)
	state.Pitch = queryFloat(q, "pitch", camera.DefaultPitch)
	if err := state.FrameLevel(lvl, s.Layout, vp); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, state)
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	row, col, ok := cellParams(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lvl, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeCell(w, lvl, s.Layout, row, col)
}

// handleSetHeight changes one cell. The edit is applied to a copy, persisted,
// then swapped into the catalog, so a failed save leaves nothing half-done.
func (s *Server) handleSetHeight(w http.ResponseWriter, r *http.Request) {
	row, col, ok := cellParams(w, r)
	if !ok {
		return
	}

	var req struct {
		Height *uint32 `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Height == nil {
		http.Error(w, `body must be {"height": <non-negative integer>}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	lvl, ok := s.lookup(w, r)
	if !ok {
		s.mu.Unlock()
		return
	}
	edited := lvl.Clone()
	if err := edited.SetHeight(row, col, *req.Height); err != nil {
		s.mu.Unlock()
		writeError(w, err)
		return
	}
	if s.DB != nil {
		if err := s.DB.SaveLevel(edited); err != nil {
			s.mu.Unlock()
			slog.Error("level save failed", "level", edited.Name(), "error", err)
			http.Error(w, "save failed", http.StatusInternalServerError)
			return
		}
	}
	s.Catalog.Put(edited)
	s.mu.Unlock()

	slog.Info("cell height set", "level", edited.Name(), "row", row, "col", col, "height", *req.Height)
	s.hub.Broadcast(Event{
		Type:  EventCellChanged,
		Level: edited.Name(),
		Cell:  &CellChange{Row: row, Col: col, Height: *req.Height},
	})

	writeCell(w, edited, s.Layout, row, col)
}

func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Rows      int    `json:"rows"`
		Columns   int    `json:"columns"`
		Height    uint32 `json:"height"`
		Generator string `json:"generator"` // flat (default), gradient, noise
		Seed      int64  `json:"seed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var lvl *level.Level
	var err error
	switch req.Generator {
	case "", "flat":
		lvl, err = level.New(req.Name, req.Rows, req.Columns, req.Height)
	case "gradient":
		lvl, err = level.NewGradient(req.Name, req.Rows, req.Columns)
	case "noise":
		cfg := level.DefaultGenConfig()
		cfg.Name, cfg.Rows, cfg.Columns, cfg.Seed = req.Name, req.Rows, req.Columns, req.Seed
		cfg.Orientation = s.Layout.Orientation
		lvl, err = level.Generate(cfg)
	default:
		http.Error(w, fmt.Sprintf("unknown generator %q", req.Generator), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	if _, exists := s.Catalog.Get(lvl.Name()); exists {
		s.mu.Unlock()
		http.Error(w, fmt.Sprintf("level %q already exists", lvl.Name()), http.StatusConflict)
		return
	}
	if s.DB != nil {
		if err := s.DB.SaveLevel(lvl); err != nil {
			s.mu.Unlock()
			slog.Error("level save failed", "level", lvl.Name(), "error", err)
			http.Error(w, "save failed", http.StatusInternalServerError)
			return
		}
	}
	s.Catalog.Put(lvl)
	s.mu.Unlock()

	slog.Info("level created", "name", lvl.Name(), "rows", lvl.Rows(), "columns", lvl.Columns())
	s.hub.Broadcast(Event{Type: EventLevelCreated, Level: lvl.Name()})

	writeJSONStatus(w, http.StatusCreated, lvl)
}

// handleSelectLevel switches the current level by name or steps through the
// catalog with wraparound.
func (s *Server) handleSelectLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Step string `json:"step"` // next or prev
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	old := s.Catalog.Current().Name()
	switch {
	case req.Name != "":
		if err := s.Catalog.Select(req.Name); err != nil {
			s.mu.Unlock()
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	case req.Step == "next":
		s.Catalog.Next()
	case req.Step == "prev":
		s.Catalog.Prev()
	default:
		s.mu.Unlock()
		http.Error(w, `body must name a level or step "next"/"prev"`, http.StatusBadRequest)
		return
	}
	current := s.Catalog.Current().Name()
	index := s.Catalog.CurrentIndex()
	s.mu.Unlock()

	if s.DB != nil {
		if err := s.DB.SaveMeta("current_level", current); err != nil {
			slog.Warn("could not persist current level", "error", err)
		}
	}

	slog.Info("level switched", "from", old, "to", current, "index", index)
	s.hub.Broadcast(Event{Type: EventLevelSelected, Level: current})
	writeJSON(w, map[string]any{"current_level": current, "index": index})
}

// lookup resolves the {name} URL parameter. Callers hold s.mu.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*level.Level, bool) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	lvl, ok := s.Catalog.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("level %q not found", name), http.StatusNotFound)
		return nil, false
	}
	return lvl, true
}

func cellParams(w http.ResponseWriter, r *http.Request) (row, col int, ok bool) {
	row, err1 := strconv.Atoi(chi.URLParam(r, "row"))
	col, err2 := strconv.Atoi(chi.URLParam(r, "col"))
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid cell indices", http.StatusBadRequest)
		return 0, 0, false
	}
	return row, col, true
}

func writeCell(w http.ResponseWriter, lvl *level.Level, layout hexgrid.Layout, row, col int) {
	pos, err := geometry.CellWorldPosition(lvl, layout, row, col)
	if err != nil {
		writeError(w, err)
		return
	}
	h, _ := lvl.Height(row, col)
	coord := hexgrid.ToAxial(layout.Orientation, row, col)

	neighbors := make([]map[string]int, 0, 6)
	for _, n := range coord.Neighbors() {
		nr, nc := hexgrid.ToOffset(layout.Orientation, n)
		if !lvl.InBounds(nr, nc) {
			continue
		}
		nh, _ := lvl.Height(nr, nc)
		neighbors = append(neighbors, map[string]int{"row": nr, "col": nc, "height": int(nh)})
	}

	writeJSON(w, map[string]any{
		"level":     lvl.Name(),
		"row":       row,
		"col":       col,
		"coord":     coord,
		"height":    h,
		"position":  pos,
		"neighbors": neighbors,
	})
}

// writeError maps level errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, level.ErrOutOfBounds):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, level.ErrInvalidDimensions), errors.Is(err, level.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, level.ErrMalformed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, level.ErrCorrupt):
		slog.Error("level consistency failure", "error", err)
		http.Error(w, "internal level error", http.StatusInternalServerError)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func queryFloat(q url.Values, key string, def float64) float64 {
	if v := q.Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
