package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/directory"
	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/ledger"
	"github.com/andreasstove999/booking-system/services/booking-service-go/internal/reservation"
)

// BookingService is the orchestrator surface the handlers call.
type BookingService interface {
	Create(ctx context.Context, clientID, spaceID string, lines []reservation.ResourceLine, start, end time.Time) (*reservation.Reservation, error)
	FindByID(ctx context.Context, id string) (*reservation.Reservation, error)
	ListForSpace(ctx context.Context, spaceID string, from, to time.Time) ([]reservation.Reservation, error)
	UpdateStatus(ctx context.Context, id string, target reservation.Status) (*reservation.Reservation, error)
	UpdateWindow(ctx context.Context, id string, start, end *time.Time) (*reservation.Reservation, error)
	Cancel(ctx context.Context, id string) (*reservation.Reservation, error)
}

type ReservationHandler struct {
	svc    BookingService
	logger *log.Logger
}

func NewReservationHandler(svc BookingService, logger *log.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, logger: logger}
}

type resourceLineRequest struct {
	ResourceID string `json:"resourceId"`
	Quantity   int    `json:"quantity"`
}

type createReservationRequest struct {
	ClientID  string                `json:"clientId"`
	SpaceID   string                `json:"spaceId"`
	StartDate time.Time             `json:"startDate"`
	EndDate   time.Time             `json:"endDate"`
	Resources []resourceLineRequest `json:"resources"`
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "invalid request body")
		return
	}

	lines := make([]reservation.ResourceLine, 0, len(req.Resources))
	for _, ln := range req.Resources {
		lines = append(lines, reservation.ResourceLine{ResourceID: ln.ResourceID, Quantity: ln.Quantity})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.svc.Create(ctx, req.ClientID, req.SpaceID, lines, req.StartDate, req.EndDate)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.svc.FindByID(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationHandler) ListForSpace(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceId")

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "from must be RFC3339")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "to must be RFC3339")
			return
		}
		to = t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.svc.ListForSpace(ctx, spaceID, from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []reservation.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

type updateReservationRequest struct {
	Status    string     `json:"status,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")

	var req updateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "invalid request body")
		return
	}
	if req.Status == "" && req.StartDate == nil && req.EndDate == nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "nothing to update")
		return
	}
	// Window and status changes commit in separate transactions, so a
	// combined body could half-apply. Refuse it.
	if req.Status != "" && (req.StartDate != nil || req.EndDate != nil) {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "update window and status separately")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var res *reservation.Reservation
	var err error

	if req.StartDate != nil || req.EndDate != nil {
		res, err = h.svc.UpdateWindow(ctx, id, req.StartDate, req.EndDate)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	if req.Status != "" {
		target, perr := reservation.ParseStatus(req.Status)
		if perr != nil {
			h.writeServiceError(w, perr)
			return
		}
		res, err = h.svc.UpdateStatus(ctx, id, target)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.svc.Cancel(ctx, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ReservationHandler) writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Printf("internal error: %v", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, reservation.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "INVALID_INPUT"
	case errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, reservation.ErrInactive):
		return http.StatusNotFound, "INACTIVE"
	case errors.Is(err, reservation.ErrSlotUnavailable):
		return http.StatusConflict, "SLOT_UNAVAILABLE"
	case errors.Is(err, ledger.ErrInsufficientInventory):
		return http.StatusConflict, "INSUFFICIENT_INVENTORY"
	case errors.Is(err, reservation.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, reservation.ErrContention):
		return http.StatusConflict, "CONTENTION"
	case errors.Is(err, directory.ErrActiveReservations):
		return http.StatusConflict, "ACTIVE_RESERVATIONS"
	case errors.Is(err, directory.ErrCapacityBelowCommitted):
		return http.StatusConflict, "CAPACITY_BELOW_COMMITTED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
