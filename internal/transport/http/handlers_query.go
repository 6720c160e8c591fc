package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/ledger/projector"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/httputil"
)

// QueryHandler serves bundle queries from the projector's read view and event
// reads from the ledger. Query results may lag the write path by one poll
// interval; auditors needing strict ordering read the event log directly.
type QueryHandler struct {
	view   projector.ReadView
	events ledger.Store
	logger *slog.Logger
}

func NewQueryHandler(view projector.ReadView, events ledger.Store, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{view: view, events: events, logger: logger}
}

// Register mounts query endpoints on the router.
func (h *QueryHandler) Register(r chi.Router) {
	r.Get("/certificates", h.HandleQueryBundles)
	r.Get("/events", h.HandleListEvents)
}

func (h *QueryHandler) HandleQueryBundles(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := h.view.Query(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "query read view"))
		return
	}
	if views == nil {
		views = []projector.BundleView{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bundles": views})
}

func queryFromParams(r *http.Request) (projector.Query, error) {
	var q projector.Query
	params := r.URL.Query()

	if raw := params.Get("owner_account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "invalid owner_account_id")
		}
		q.OwnerAccountID = &id
	}
	if raw := params.Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "invalid device_id")
		}
		q.DeviceID = &id
	}
	q.Status = params.Get("status")
	if raw := params.Get("produced_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "invalid produced_after, want RFC3339")
		}
		q.ProducedAfter = &t
	}
	if raw := params.Get("produced_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "invalid produced_before, want RFC3339")
		}
		q.ProducedBefore = &t
	}
	return q, nil
}

func (h *QueryHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid after sequence"))
			return
		}
		after = parsed
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be in [1, 1000]"))
			return
		}
		limit = parsed
	}

	events, err := h.events.ListFrom(r.Context(), after, limit)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "list events"))
		return
	}
	if events == nil {
		events = []ledger.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
