package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/proserve/booking-core/internal/booking"
	"github.com/proserve/booking-core/internal/conflict"
	"github.com/proserve/booking-core/internal/lock"
	"github.com/proserve/booking-core/internal/schedule"
)

func bookSlotHandler(orc *booking.Orchestrator, validate *validator.Validate, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		slotID, _ := uuid.Parse(req.SlotID)
		clientID, _ := uuid.Parse(req.ClientID)

		result, err := orc.BookSlot(r.Context(), slotID, clientID, booking.Details{Price: req.Price}, booking.Options{Timeout: timeout})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookSlotResponse{
			Appointment: appointmentPayload(result.Appointment),
			Slot:        slotPayload(result.Slot),
		})
	}
}

func validateEntityHandler(detector *conflict.Detector, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateEntityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		entity, entityType, err := buildEntity(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entity", err.Error())
			return
		}

		opts := conflict.ValidateOptions{
			DetectOptions: conflict.DetectOptions{
				CheckClientConflicts: req.CheckClientConflicts,
				AllowOverride:        req.AllowOverride,
			},
			AllowCriticalConflicts: req.AllowCriticalConflicts,
		}

		report, err := detector.ValidateEntity(r.Context(), entity, entityType, opts)
		if err != nil {
			if errors.Is(err, conflict.ErrUnknownEntityType) {
				writeError(w, http.StatusBadRequest, "unknown_entity_type", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		strategy := conflict.Strategy(req.ResolutionStrategy)
		if strategy == "" {
			strategy = conflict.StrategyStrict
		}
		resolutions := conflict.ResolveConflicts(report.Conflicts, conflict.ResolveOptions{Strategy: strategy})

		writeJSON(w, http.StatusOK, ValidateEntityResponse{Report: report, Resolutions: resolutions})
	}
}

// buildEntity maps the wire request to the schedule value the detector
// expects for the requested entity type.
func buildEntity(req ValidateEntityRequest) (any, conflict.EntityType, error) {
	professionalID, err := uuid.Parse(req.ProfessionalID)
	if err != nil {
		return nil, "", err
	}

	switch conflict.EntityType(req.EntityType) {
	case conflict.EntitySlot:
		return schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			Status:         schedule.SlotAvailable,
		}, conflict.EntitySlot, nil

	case conflict.EntityAppointment:
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			return nil, "", errors.New("client_id is required for appointment validation")
		}
		a := schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       clientID,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
		}
		if req.Price != nil {
			a.Price = *req.Price
		}
		if req.SlotID != "" {
			slotID, err := uuid.Parse(req.SlotID)
			if err != nil {
				return nil, "", err
			}
			a.SlotID = &slotID
		}
		return a, conflict.EntityAppointment, nil

	case conflict.EntityBlock:
		return schedule.BlockedPeriod{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			Reason:         req.Reason,
			AllowOverride:  req.AllowOverride,
		}, conflict.EntityBlock, nil

	default:
		// Let the detector produce its canonical unknown-type error.
		return struct{}{}, conflict.EntityType(req.EntityType), nil
	}
}

func conflictStatisticsHandler(detector *conflict.Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
			return
		}

		now := time.Now()
		from, to := now, now.AddDate(0, 1, 0)
		if v := r.URL.Query().Get("from"); v != "" {
			if from, err = time.Parse(time.RFC3339, v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
				return
			}
		}
		if v := r.URL.Query().Get("to"); v != "" {
			if to, err = time.Parse(time.RFC3339, v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
				return
			}
		}

		report, err := detector.Statistics(r.Context(), professionalID, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func listLocksHandler(locks *lock.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lockPayloads(locks.LockInfo(r.Context(), "")))
	}
}

func lockStatusHandler(locks *lock.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		writeJSON(w, http.StatusOK, LockStatusResponse{
			ResourceKey: key,
			Locked:      locks.IsLocked(r.Context(), key),
			Locks:       lockPayloads(locks.LockInfo(r.Context(), key)),
		})
	}
}

func lockPayloads(locks []lock.Lock) []LockPayload {
	out := make([]LockPayload, 0, len(locks))
	for _, l := range locks {
		out = append(out, LockPayload{
			ResourceKey: l.ResourceKey,
			AcquiredAt:  l.AcquiredAt,
			ExpiresAt:   l.ExpiresAt,
		})
	}
	return out
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrBlocked):
		writeError(w, http.StatusConflict, "booking_blocked", err.Error())
	case errors.Is(err, lock.ErrNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
