package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/creditsales-ai-platform/internal/conversation"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

// ProviderHealth is the breaker state the admin API reads and overrides.
type ProviderHealth interface {
	Snapshot() []eligibility.ProviderStatus
	ForceDown(provider string, down bool)
	Unblock(provider string)
}

type SessionReader interface {
	Get(ctx context.Context, customerKey string) (conversation.Session, error)
}

type ParkedLister interface {
	Parked(ctx context.Context) ([]conversation.ParkedCustomer, error)
}

type TurnLookup interface {
	GetJob(ctx context.Context, jobID string) (*conversation.TurnRecord, error)
}

type AggregatorFlusher interface {
	FlushAll(ctx context.Context) int
}

// AdminConfig lists the collaborators. Only Health and Providers are
// required; missing optional pieces answer 501.
type AdminConfig struct {
	Health     ProviderHealth
	Providers  []string
	Sessions   SessionReader
	Parked     ParkedLister
	Turns      TurnLookup
	Aggregator AggregatorFlusher
	Logger     *logging.Logger
}

// AdminHandler serves the operator endpoints under /admin.
type AdminHandler struct {
	cfg    AdminConfig
	logger *logging.Logger
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Health == nil {
		panic("handlers: provider health cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{cfg: cfg, logger: logger}
}

// ProvidersResponse is the body of GET /admin/providers.
type ProvidersResponse struct {
	Providers []eligibility.ProviderStatus `json:"providers"`
}

// ListProviders returns breaker state for every configured provider,
// including ones that have not been called yet.
func (h *AdminHandler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.cfg.Health.Snapshot()
	seen := make(map[string]bool, len(snapshot))
	for _, s := range snapshot {
		seen[s.Provider] = true
	}
	for _, name := range h.cfg.Providers {
		if !seen[name] {
			snapshot = append(snapshot, eligibility.ProviderStatus{Provider: name, Available: true})
		}
	}
	slices.SortFunc(snapshot, func(a, b eligibility.ProviderStatus) int { return strings.Compare(a.Provider, b.Provider) })
	writeJSON(w, http.StatusOK, ProvidersResponse{Providers: snapshot})
}

// ForceDown handles POST and DELETE /admin/providers/{name}/force-down.
func (h *AdminHandler) ForceDown(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerParam(w, r)
	if !ok {
		return
	}
	down := r.Method != http.MethodDelete
	h.cfg.Health.ForceDown(name, down)
	h.logger.Warn("provider force-down changed", "provider", name, "forced_down", down, "by", adminSubject(r))
	writeJSON(w, http.StatusOK, map[string]any{"provider": name, "forced_down": down})
}

// Unblock handles POST /admin/providers/{name}/unblock.
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	name, ok := h.providerParam(w, r)
	if !ok {
		return
	}
	h.cfg.Health.Unblock(name)
	h.logger.Info("provider unblocked", "provider", name, "by", adminSubject(r))
	writeJSON(w, http.StatusOK, map[string]any{"provider": name, "unblocked": true})
}

// GetSession handles GET /admin/sessions/{customer}.
func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Sessions == nil {
		writeError(w, http.StatusNotImplemented, "session lookup not configured")
		return
	}
	key := strings.TrimSpace(chi.URLParam(r, "customer"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "customer required")
		return
	}
	session, err := h.cfg.Sessions.Get(r.Context(), key)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "customer", key)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ListParked handles GET /admin/parked.
func (h *AdminHandler) ListParked(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Parked == nil {
		writeError(w, http.StatusNotImplemented, "parking lot not configured")
		return
	}
	parked, err := h.cfg.Parked.Parked(r.Context())
	if err != nil {
		h.logger.Error("failed to list parked customers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list parked customers")
		return
	}
	if parked == nil {
		parked = []conversation.ParkedCustomer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parked": parked, "total": len(parked)})
}

// GetTurn handles GET /admin/turns/{jobID}.
func (h *AdminHandler) GetTurn(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Turns == nil {
		writeError(w, http.StatusNotImplemented, "turn tracking not configured")
		return
	}
	job, err := h.cfg.Turns.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, conversation.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "turn not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load turn", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load turn")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// FlushAggregator handles POST /admin/aggregator/flush.
func (h *AdminHandler) FlushAggregator(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Aggregator == nil {
		writeError(w, http.StatusNotImplemented, "aggregator not configured")
		return
	}
	n := h.cfg.Aggregator.FlushAll(r.Context())
	h.logger.Info("aggregator flushed by admin", "turns", n, "by", adminSubject(r))
	writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
}

func (h *AdminHandler) providerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "name")))
	if !slices.Contains(h.cfg.Providers, name) {
		writeError(w, http.StatusNotFound, "unknown provider")
		return "", false
	}
	return name, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
