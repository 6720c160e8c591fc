// Package handler wires whitelist management endpoints to the gate.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/httputil"
)

// Gate defines the whitelist operations the transport exposes.
type Gate interface {
	Update(ctx context.Context, recipientID, senderID uuid.UUID, allow bool) error
	ListSenders(ctx context.Context, recipientID uuid.UUID) ([]uuid.UUID, error)
}

// Handler wires whitelist endpoints to the gate.
type Handler struct {
	gate   Gate
	logger *slog.Logger
}

func New(gate Gate, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

// Register mounts whitelist endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/accounts/{accountID}/whitelist", h.HandleUpdate)
	r.Get("/accounts/{accountID}/whitelist", h.HandleList)
}

type updateRequest struct {
	SenderAccountID uuid.UUID `json:"sender_account_id"`
	Allow           bool      `json:"allow"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	recipientID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}
	req, ok := httputil.Decode[updateRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.gate.Update(r.Context(), recipientID, req.SenderAccountID, req.Allow); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"recipient_account_id": recipientID,
		"sender_account_id":    req.SenderAccountID,
		"allow":                req.Allow,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	recipientID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}
	senders, err := h.gate.ListSenders(r.Context(), recipientID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if senders == nil {
		senders = []uuid.UUID{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"recipient_account_id": recipientID,
		"sender_account_ids":   senders,
	})
}
