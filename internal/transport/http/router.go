package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quizpack/internal/app"
	"quizpack/internal/domain"
)

const maxUploadBytes = 4 << 20

// TokenStore is the mutable authentication provider behind /auth/token.
type TokenStore interface {
	app.Authenticator
	SetToken(token string)
	Clear()
}

type RouterConfig struct {
	Resolver *app.PackResolver
	Tracker  *app.Tracker
	Auth     TokenStore
	// Endpoint is the remote pack endpoint; remote routes answer 400 when it is empty.
	Endpoint string
	Checks   map[string]Checker
	Logger   *slog.Logger
}

type api struct {
	resolver *app.PackResolver
	tracker  *app.Tracker
	auth     TokenStore
	endpoint string
	logger   *slog.Logger
}

// NewRouter wires the REST surface and the /ws play channel.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{
		resolver: cfg.Resolver,
		tracker:  cfg.Tracker,
		auth:     cfg.Auth,
		endpoint: cfg.Endpoint,
		logger:   logger,
	}
	ws := NewWSHandler(cfg.Resolver, cfg.Tracker, cfg.Auth, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth(logger, cfg.Checks))

	r.Route("/packs", func(r chi.Router) {
		r.Get("/", a.listPacks)
		r.Post("/", a.uploadPack)
		r.Post("/discover", a.discoverPacks)
		r.Post("/remote/{packID}", a.loadRemotePack)
		r.Put("/{packID}/enabled", a.setPackEnabled)
		r.Delete("/{packID}", a.removePack)
	})
	r.Get("/categories", a.categories)
	r.Get("/stats", a.stats)
	r.Get("/high-scores", a.highScores)
	r.Get("/reports", a.reports)
	r.Post("/reports", a.reportQuestion)
	r.Put("/auth/token", a.login)
	r.Delete("/auth/token", a.logout)
	r.Get("/ws", ws.ServeWS)
	return r
}

func (a *api) listPacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.resolver.Packs())
}

func (a *api) uploadPack(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "pack file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "could not read pack file")
		return
	}
	pack, err := a.resolver.LoadUploadedPack(r.Context(), data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, packSummary(pack))
}

func (a *api) loadRemotePack(w http.ResponseWriter, r *http.Request) {
	if a.endpoint == "" {
		writeError(w, http.StatusBadRequest, "no_endpoint", "remote pack endpoint not configured")
		return
	}
	pack, err := a.resolver.LoadRemotePack(r.Context(), a.endpoint, a.auth.Credential(), chi.URLParam(r, "packID"))
	if err != nil {
		a.logger.Warn("remote pack not loaded", "pack_id", chi.URLParam(r, "packID"), "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, packSummary(pack))
}

func (a *api) discoverPacks(w http.ResponseWriter, r *http.Request) {
	if a.endpoint == "" {
		writeError(w, http.StatusBadRequest, "no_endpoint", "remote pack endpoint not configured")
		return
	}
	result, err := a.resolver.DiscoverRemotePacks(r.Context(), a.endpoint, a.auth.Credential())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	failed := make(map[string]string, len(result.Failed))
	for id, ferr := range result.Failed {
		failed[id] = ferr.Error()
	}
	loaded := result.Loaded
	if loaded == nil {
		loaded = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": loaded, "failed": failed})
}

func (a *api) setPackEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := readJSON(r, &body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "validation", `body must be {"enabled": true|false}`)
		return
	}
	if err := a.resolver.SetPackEnabled(r.Context(), chi.URLParam(r, "packID"), *body.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) removePack(w http.ResponseWriter, r *http.Request) {
	if err := a.resolver.RemoveUploadedPack(r.Context(), chi.URLParam(r, "packID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.resolver.Categories(a.auth))
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.tracker.Stats(r.Context())
	if err != nil {
		a.logger.Warn("stats unreadable", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "accuracy": stats.Accuracy()})
}

func (a *api) highScores(w http.ResponseWriter, r *http.Request) {
	scores, err := a.tracker.HighScores(r.Context())
	if err != nil {
		a.logger.Warn("high scores unreadable", "error", err)
	}
	writeJSON(w, http.StatusOK, scores)
}

func (a *api) reports(w http.ResponseWriter, r *http.Request) {
	reports, err := a.tracker.Reports(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if reports == nil {
		reports = []domain.QuestionReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (a *api) reportQuestion(w http.ResponseWriter, r *http.Request) {
	var report domain.QuestionReport
	if err := readJSON(r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid report payload")
		return
	}
	if err := a.tracker.ReportQuestion(r.Context(), report); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// login stores the bearer token and restores cached api packs deferred while logged out.
func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := readJSON(r, &body); err != nil || body.Token == "" {
		writeError(w, http.StatusBadRequest, "validation", `body must be {"token": "..."}`)
		return
	}
	a.auth.SetToken(body.Token)
	if !a.auth.IsAuthenticated() {
		a.auth.Clear()
		writeError(w, http.StatusUnauthorized, "auth_required", "token expired")
		return
	}
	report, err := a.resolver.LoadCachedPacks(r.Context(), a.auth)
	if err != nil {
		a.logger.Warn("cached packs not restored after login", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "restored": report.Loaded})
}

// logout drops the token; cached api packs stay stored and leave the merged view.
func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	a.auth.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type packInfo struct {
	ID            string   `json:"packId"`
	Name          string   `json:"packName"`
	Version       string   `json:"packVersion,omitempty"`
	QuestionCount int      `json:"questionCount"`
	Categories    []string `json:"categories"`
}

func packSummary(pack domain.Pack) packInfo {
	info := packInfo{ID: pack.ID, Name: pack.Name, Version: pack.Version, QuestionCount: pack.QuestionCount()}
	for name := range pack.Categories {
		info.Categories = append(info.Categories, name)
	}
	slices.Sort(info.Categories)
	return info
}
