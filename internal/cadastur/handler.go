package cadastur

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/entity"
	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	"github.com/NicolasCavalcanti/trekko-website/internal/metrics"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

// Response messages.
const (
	MsgInvalidPayload = "request data is invalid or missing"
	MsgNumberRequired = "registry number is required"
	MsgEntryNotFound  = "registry number not found"
	MsgValidateFailed = "could not validate registry number"
	MsgSearchFailed   = "could not search guides"
	MsgLookupFailed   = "could not load registry information"
)

// Lookup is the read side of the registry used by the info and search
// endpoints.
type Lookup interface {
	FindByCertificate(ctx context.Context, raw string) (*entity.Guide, error)
	SearchByName(ctx context.Context, namePart string, limit int) ([]entity.Guide, error)
	SearchByLocation(ctx context.Context, state, municipality string, limit int) ([]entity.Guide, error)
}

// Handler exposes the registry endpoints.
type Handler struct {
	validator *Validator
	lookup    Lookup
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
}

func NewHandler(validator *Validator, lookup Lookup, m *metrics.Metrics, logger *zap.SugaredLogger) *Handler {
	return &Handler{validator: validator, lookup: lookup, metrics: m, logger: logger}
}

// ValidateRequest is the validate-cadastur body. A non-empty Name also
// requires the registry name to match.
type ValidateRequest struct {
	CadasturNumber string `json:"cadastur_number"`
	Name           string `json:"name"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Expiry  string `json:"expiry,omitempty"`
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := utilities.DecodeJSONObject(r.Body, &req); err != nil {
		h.logger.Debugw("invalid validate payload", "err", err)
		writeJSON(w, http.StatusBadRequest, validateResponse{Message: MsgInvalidPayload})
		return
	}
	if strings.TrimSpace(req.CadasturNumber) == "" {
		writeJSON(w, http.StatusBadRequest, validateResponse{Message: MsgNumberRequired})
		return
	}
	name := strings.TrimSpace(req.Name)
	res, err := h.validator.Validate(r.Context(), Request{
		Number:           req.CadasturNumber,
		Name:             name,
		RequireNameMatch: name != "",
	})
	if err != nil {
		h.metrics.CadasturValidated(metrics.OutcomeError)
		h.logger.Errorw("validate registry number", "err", err)
		writeJSON(w, http.StatusInternalServerError, validateResponse{Message: MsgValidateFailed})
		return
	}
	if res.Valid {
		h.metrics.CadasturValidated(metrics.OutcomeValid)
	} else {
		h.metrics.CadasturValidated(metrics.OutcomeInvalid)
		h.logger.Infow("registry number rejected", "stage", res.Stage, "reason", res.Reason)
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: res.Valid, Message: res.Reason, Expiry: res.Expiry})
}

type infoResponse struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	GuideInfo *entity.Guide `json:"guide_info,omitempty"`
}

// Info returns the registry entry for the number in the path.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	g, err := h.lookup.FindByCertificate(r.Context(), r.PathValue("numero"))
	if err != nil {
		h.logger.Errorw("registry lookup", "err", err)
		writeJSON(w, http.StatusInternalServerError, infoResponse{Message: MsgLookupFailed})
		return
	}
	if g == nil {
		writeJSON(w, http.StatusNotFound, infoResponse{Message: MsgEntryNotFound})
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{Success: true, GuideInfo: g})
}

// SearchRequest is the search-guides body. Every filter is optional.
type SearchRequest struct {
	Name         string `json:"nome"`
	State        string `json:"uf"`
	Municipality string `json:"municipio"`
	Limit        int    `json:"limit"`
}

type searchResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message,omitempty"`
	Guides     []entity.Guide `json:"guides"`
	TotalFound int            `json:"total_found"`
}

// Search runs the name and location searches concurrently and merges them,
// name matches first, without duplicate certificates. total_found counts
// the merged set before the limit is applied.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := utilities.DecodeJSONObject(r.Body, &req); err != nil {
		h.logger.Debugw("invalid search payload", "err", err)
		writeJSON(w, http.StatusBadRequest, searchResponse{Message: MsgInvalidPayload, Guides: []entity.Guide{}})
		return
	}
	limit := repo.ClampLimit(req.Limit)
	name := strings.TrimSpace(req.Name)
	state := strings.TrimSpace(req.State)
	municipality := strings.TrimSpace(req.Municipality)

	var byName, byLocation []entity.Guide
	g, ctx := errgroup.WithContext(r.Context())
	if name != "" {
		g.Go(func() error {
			var err error
			byName, err = h.lookup.SearchByName(ctx, name, limit)
			return err
		})
	}
	if state != "" || municipality != "" {
		g.Go(func() error {
			var err error
			byLocation, err = h.lookup.SearchByLocation(ctx, state, municipality, limit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.Errorw("search guides", "err", err)
		writeJSON(w, http.StatusInternalServerError, searchResponse{Message: MsgSearchFailed, Guides: []entity.Guide{}})
		return
	}

	merged := mergeGuides(byName, byLocation)
	total := len(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Guides: merged, TotalFound: total})
}

func mergeGuides(lists ...[]entity.Guide) []entity.Guide {
	seen := make(map[string]struct{})
	out := []entity.Guide{}
	for _, list := range lists {
		for _, g := range list {
			if _, dup := seen[g.Certificate]; dup {
				continue
			}
			seen[g.Certificate] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
