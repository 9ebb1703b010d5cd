package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bellbot/bellbot-core/internal/timetable"
)

// schoolIDParam extracts the school from the URL and enforces scoping.
// An empty return means the error response is already written.
func (s *Server) schoolIDParam(w http.ResponseWriter, r *http.Request) string {
	schoolID := chi.URLParam(r, "schoolID")
	if !claimsFrom(r.Context()).CanAccessSchool(schoolID) {
		writeForbidden(w, "school belongs to another account")
		return ""
	}
	return schoolID
}

// republish compiles and pushes the school's timetable to its controllers.
// Called after every mutation that changes what the controllers should
// ring; failures are logged, never surfaced, since the write itself
// succeeded and a controller can always catch up via a sync request.
func (s *Server) republish(ctx context.Context, schoolID string) {
	if s.provisioner == nil {
		return
	}
	if _, _, err := s.provisioner.PushToSchool(ctx, schoolID); err != nil {
		s.logger.Error("republish after mutation failed",
			"school_id", schoolID, "error", err)
	}
}

// handleGetSchedule returns the school's weekly schedule, creating an
// empty seven-day schedule on first access.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}

	ws, err := s.schedules.GetBySchool(r.Context(), schoolID)
	if err != nil {
		s.logger.Error("loading schedule failed", "school_id", schoolID, "error", err)
		writeInternalError(w, "failed to load schedule")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// handleUpdateDay replaces one day of the weekly schedule and republishes.
func (s *Server) handleUpdateDay(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}
	day := chi.URLParam(r, "day")

	var ds timetable.DaySchedule
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFrom(r.Context())
	ws, err := s.schedules.UpdateDay(r.Context(), schoolID, day, ds, &claims.Subject)
	switch {
	case err == nil:
		s.republish(r.Context(), schoolID)
		writeJSON(w, http.StatusOK, ws)
	case errors.Is(err, timetable.ErrInvalidDay):
		writeBadRequest(w, "day must be a full English day name")
	case errors.Is(err, timetable.ErrInvalidTimeEntry):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("updating day failed", "school_id", schoolID, "error", err)
		writeInternalError(w, "failed to update schedule")
	}
}

// handlePublishTimetable compiles the school's timetable and pushes it to
// every registered controller.
func (s *Server) handlePublishTimetable(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}
	if s.provisioner == nil {
		writeInternalError(w, "publishing is not configured")
		return
	}

	dt, pushed, err := s.provisioner.PushToSchool(r.Context(), schoolID)
	if err != nil {
		s.logger.Error("publish failed", "school_id", schoolID, "error", err)
		writeInternalError(w, "failed to publish timetable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timetable_id":   dt.ID,
		"devices_pushed": pushed,
		"truncated_days": dt.TruncatedDays,
	})
}

// handleListPresets returns the school's presets.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}

	presets, err := s.presets.ListBySchool(r.Context(), schoolID)
	if err != nil {
		writeInternalError(w, "failed to list presets")
		return
	}
	writeJSON(w, http.StatusOK, presets)
}

// presetRequest is the request body for creating or updating a preset.
type presetRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Times       []timetable.TimeEntry `json:"times"`
}

// handleCreatePreset adds a named ring list to the school.
func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}

	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := timetable.ValidateEntries(req.Times); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	p := &timetable.Preset{
		ID:          uuid.NewString(),
		SchoolID:    schoolID,
		Name:        req.Name,
		Description: req.Description,
		Times:       req.Times,
	}
	if err := s.presets.Create(r.Context(), p); err != nil {
		s.logger.Error("creating preset failed", "school_id", schoolID, "error", err)
		writeInternalError(w, "failed to create preset")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// loadPreset fetches a preset by URL id and enforces school scoping.
func (s *Server) loadPreset(w http.ResponseWriter, r *http.Request) *timetable.Preset {
	p, err := s.presets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, timetable.ErrPresetNotFound) {
			writeNotFound(w, "preset not found")
		} else {
			writeInternalError(w, "failed to load preset")
		}
		return nil
	}
	if !claimsFrom(r.Context()).CanAccessSchool(p.SchoolID) {
		writeForbidden(w, "preset belongs to another school")
		return nil
	}
	return p
}

// handleUpdatePreset modifies a preset and republishes, since days
// referencing it now ring different times.
func (s *Server) handleUpdatePreset(w http.ResponseWriter, r *http.Request) {
	p := s.loadPreset(w, r)
	if p == nil {
		return
	}

	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Description != "" {
		p.Description = req.Description
	}
	if req.Times != nil {
		if err := timetable.ValidateEntries(req.Times); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		p.Times = req.Times
	}

	if err := s.presets.Update(r.Context(), p); err != nil {
		writeInternalError(w, "failed to update preset")
		return
	}

	s.republish(r.Context(), p.SchoolID)
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePreset removes a preset not referenced by the schedule.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	p := s.loadPreset(w, r)
	if p == nil {
		return
	}

	err := s.presets.Delete(r.Context(), p.ID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, timetable.ErrPresetInUse):
		writeConflict(w, "preset is referenced by the weekly schedule")
	default:
		writeInternalError(w, "failed to delete preset")
	}
}

// handleListSpecialDays returns the school's special days.
func (s *Server) handleListSpecialDays(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}

	days, err := s.specials.ListBySchool(r.Context(), schoolID)
	if err != nil {
		writeInternalError(w, "failed to list special days")
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// specialDayRequest is the request body for creating a special day.
type specialDayRequest struct {
	Date  string                `json:"date"`
	Times []timetable.TimeEntry `json:"times"`
}

// handleCreateSpecialDay adds a date override and republishes so imminent
// dates reach the controllers.
func (s *Server) handleCreateSpecialDay(w http.ResponseWriter, r *http.Request) {
	schoolID := s.schoolIDParam(w, r)
	if schoolID == "" {
		return
	}

	var req specialDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFrom(r.Context())
	sd := &timetable.SpecialDay{
		SchoolID:  schoolID,
		Date:      req.Date,
		Times:     req.Times,
		CreatedBy: &claims.Subject,
	}
	err := s.specials.Create(r.Context(), sd)
	switch {
	case err == nil:
		s.republish(r.Context(), schoolID)
		writeJSON(w, http.StatusCreated, sd)
	case errors.Is(err, timetable.ErrInvalidDate):
		writeBadRequest(w, "date must be YYYY-MM-DD")
	case errors.Is(err, timetable.ErrInvalidTimeEntry):
		writeBadRequest(w, err.Error())
	case errors.Is(err, timetable.ErrSpecialDayExists):
		writeConflict(w, "a special day already exists for this date")
	default:
		s.logger.Error("creating special day failed", "school_id", schoolID, "error", err)
		writeInternalError(w, "failed to create special day")
	}
}

// handleDeleteSpecialDay removes a date override and republishes.
func (s *Server) handleDeleteSpecialDay(w http.ResponseWriter, r *http.Request) {
	sd, err := s.specials.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, timetable.ErrSpecialDayNotFound) {
			writeNotFound(w, "special day not found")
		} else {
			writeInternalError(w, "failed to load special day")
		}
		return
	}
	if !claimsFrom(r.Context()).CanAccessSchool(sd.SchoolID) {
		writeForbidden(w, "special day belongs to another school")
		return
	}

	if err := s.specials.Delete(r.Context(), sd.ID); err != nil {
		writeInternalError(w, "failed to delete special day")
		return
	}
	s.republish(r.Context(), sd.SchoolID)
	w.WriteHeader(http.StatusNoContent)
}
