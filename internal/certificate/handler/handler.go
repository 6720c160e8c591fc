// Package handler wires certificate lifecycle endpoints to the certificate
// service. The handlers stay thin: decode, delegate, translate errors.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/service"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/httputil"
)

// Service defines the certificate operations the transport exposes.
type Service interface {
	Issue(ctx context.Context, req service.IssueRequest) (*models.Bundle, error)
	Transfer(ctx context.Context, req service.TransferRequest) ([]*models.Bundle, error)
	Cancel(ctx context.Context, req service.CancelRequest) ([]*models.Bundle, error)
	Reserve(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID, amount models.Amount) ([]*models.Bundle, error)
	Release(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID) ([]*models.Bundle, error)
	Withdraw(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID, amount models.Amount) ([]*models.Bundle, error)
	Claim(ctx context.Context, bundleIDs []uuid.UUID, ownerAccountID uuid.UUID) ([]*models.Bundle, error)
	Lock(ctx context.Context, bundleIDs []uuid.UUID) ([]*models.Bundle, error)
}

// Handler wires certificate endpoints to the certificate service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts certificate endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/certificates/issue", h.HandleIssue)
	r.Post("/certificates/transfer", h.HandleTransfer)
	r.Post("/certificates/cancel", h.HandleCancel)
	r.Post("/certificates/reserve", h.HandleReserve)
	r.Post("/certificates/release", h.HandleRelease)
	r.Post("/certificates/withdraw", h.HandleWithdraw)
	r.Post("/certificates/claim", h.HandleClaim)
	r.Post("/certificates/lock", h.HandleLock)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[issueRequest](w, r, h.logger)
	if !ok {
		return
	}
	bundle, err := h.service.Issue(r.Context(), service.IssueRequest{
		DeviceID:        req.DeviceID,
		OwnerAccountID:  req.OwnerAccountID,
		Quantity:        req.Quantity,
		EnergySource:    models.EnergySource(req.EnergySource),
		ProductionStart: req.ProductionStart,
		ProductionEnd:   req.ProductionEnd,
		PostConversion:  req.PostConversion,
		Metadata:        req.Metadata,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromBundle(bundle))
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := httputil.Decode[transferRequest](w, r, h.logger)
	if !ok {
		return
	}
	moved, err := h.service.Transfer(r.Context(), service.TransferRequest{
		BundleIDs:       req.BundleIDs,
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Amount:          req.amount(),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "transfer failed",
			"source_account_id", req.SourceAccountID,
			"target_account_id", req.TargetAccountID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.DebugContext(r.Context(), "transfer handled",
		"duration_ms", time.Since(start).Milliseconds())
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"moved_bundles": fromBundles(moved)})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[cancelRequest](w, r, h.logger)
	if !ok {
		return
	}
	cancelled, err := h.service.Cancel(r.Context(), service.CancelRequest{
		BundleIDs:      req.BundleIDs,
		OwnerAccountID: req.OwnerAccountID,
		Beneficiary:    req.Beneficiary,
		Amount:         req.amount(),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"cancelled_bundles": fromBundles(cancelled)})
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[reserveRequest](w, r, h.logger)
	if !ok {
		return
	}
	reserved, err := h.service.Reserve(r.Context(), req.BundleIDs, req.OwnerAccountID, req.amount())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reserved_bundles": fromBundles(reserved)})
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[releaseRequest](w, r, h.logger)
	if !ok {
		return
	}
	released, err := h.service.Release(r.Context(), req.BundleIDs, req.OwnerAccountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"released_bundles": fromBundles(released)})
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[withdrawRequest](w, r, h.logger)
	if !ok {
		return
	}
	withdrawn, err := h.service.Withdraw(r.Context(), req.BundleIDs, req.OwnerAccountID, req.amount())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"withdrawn_bundles": fromBundles(withdrawn)})
}

func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[claimRequest](w, r, h.logger)
	if !ok {
		return
	}
	claimed, err := h.service.Claim(r.Context(), req.BundleIDs, req.OwnerAccountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"claimed_bundles": fromBundles(claimed)})
}

func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[lockRequest](w, r, h.logger)
	if !ok {
		return
	}
	locked, err := h.service.Lock(r.Context(), req.BundleIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"locked_bundles": fromBundles(locked)})
}
