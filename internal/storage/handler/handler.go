// Package handler wires storage charge and discharge endpoints to the
// allocation engine.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	certmodels "github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/certificate/models"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/internal/storage/service"
	dErrors "github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/domain-errors"
	"github.com/suriyanarayananvcet/my-granular-certificate-registry/pkg/platform/httputil"
)

// Engine defines the storage operations the transport exposes.
type Engine interface {
	RecordCharge(ctx context.Context, req service.ChargeRequest) (*storage.ChargeRecord, error)
	AllocateDischarge(ctx context.Context, req service.DischargeRequest) (*storage.DischargeRecord, *certmodels.Bundle, error)
	ChargeBalance(ctx context.Context, deviceID uuid.UUID) (uint64, error)
}

// Handler wires storage endpoints to the allocation engine.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts storage endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/storage/charges", h.HandleRecordCharge)
	r.Post("/storage/discharges", h.HandleAllocateDischarge)
	r.Get("/storage/devices/{deviceID}/balance", h.HandleChargeBalance)
}

type chargeRequest struct {
	DeviceID         uuid.UUID `json:"device_id"`
	EnergyChargedWh  uint64    `json:"energy_charged_wh"`
	EfficiencyFactor float64   `json:"efficiency_factor"`
	ChargeStart      time.Time `json:"charge_start"`
	ChargeEnd        time.Time `json:"charge_end"`
}

type dischargeRequest struct {
	DeviceID       uuid.UUID `json:"device_id"`
	OwnerAccountID uuid.UUID `json:"owner_account_id"`
	DischargedWh   uint64    `json:"discharged_wh"`
	DischargeStart time.Time `json:"discharge_start"`
	DischargeEnd   time.Time `json:"discharge_end"`
}

type chargeResponse struct {
	ID               uuid.UUID `json:"id"`
	DeviceID         uuid.UUID `json:"device_id"`
	EnergyChargedWh  uint64    `json:"energy_charged_wh"`
	EfficiencyFactor float64   `json:"efficiency_factor"`
	RemainingWh      uint64    `json:"remaining_wh"`
	ChargeStart      time.Time `json:"charge_start"`
	ChargeEnd        time.Time `json:"charge_end"`
}

type allocationResponse struct {
	ChargeRecordID uuid.UUID `json:"charge_record_id"`
	AllocatedWh    uint64    `json:"allocated_wh"`
}

type dischargeResponse struct {
	ID             uuid.UUID            `json:"id"`
	DeviceID       uuid.UUID            `json:"device_id"`
	DischargedWh   uint64               `json:"discharged_wh"`
	DischargeStart time.Time            `json:"discharge_start"`
	DischargeEnd   time.Time            `json:"discharge_end"`
	Allocations    []allocationResponse `json:"allocations"`
	BundleID       uuid.UUID            `json:"bundle_id"`
}

func (h *Handler) HandleRecordCharge(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[chargeRequest](w, r, h.logger)
	if !ok {
		return
	}
	charge, err := h.engine.RecordCharge(r.Context(), service.ChargeRequest{
		DeviceID:         req.DeviceID,
		EnergyChargedWh:  req.EnergyChargedWh,
		EfficiencyFactor: req.EfficiencyFactor,
		ChargeStart:      req.ChargeStart,
		ChargeEnd:        req.ChargeEnd,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, chargeResponse{
		ID:               charge.ID,
		DeviceID:         charge.DeviceID,
		EnergyChargedWh:  charge.EnergyChargedWh,
		EfficiencyFactor: charge.EfficiencyFactor,
		RemainingWh:      charge.RemainingWh,
		ChargeStart:      charge.ChargeStart,
		ChargeEnd:        charge.ChargeEnd,
	})
}

func (h *Handler) HandleAllocateDischarge(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[dischargeRequest](w, r, h.logger)
	if !ok {
		return
	}
	discharge, bundle, err := h.engine.AllocateDischarge(r.Context(), service.DischargeRequest{
		DeviceID:       req.DeviceID,
		OwnerAccountID: req.OwnerAccountID,
		DischargedWh:   req.DischargedWh,
		DischargeStart: req.DischargeStart,
		DischargeEnd:   req.DischargeEnd,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "discharge allocation failed",
			"device_id", req.DeviceID,
			"discharged_wh", req.DischargedWh,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	allocations := make([]allocationResponse, 0, len(discharge.Allocations))
	for _, a := range discharge.Allocations {
		allocations = append(allocations, allocationResponse{
			ChargeRecordID: a.ChargeRecordID,
			AllocatedWh:    a.AllocatedWh,
		})
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"discharge_record": dischargeResponse{
			ID:             discharge.ID,
			DeviceID:       discharge.DeviceID,
			DischargedWh:   discharge.DischargedWh,
			DischargeStart: discharge.DischargeStart,
			DischargeEnd:   discharge.DischargeEnd,
			Allocations:    allocations,
			BundleID:       discharge.BundleID,
		},
		"bundle_id": bundle.ID,
	})
}

func (h *Handler) HandleChargeBalance(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid device id"))
		return
	}
	balance, err := h.engine.ChargeBalance(r.Context(), deviceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"device_id":      deviceID,
		"allocatable_wh": balance,
	})
}
