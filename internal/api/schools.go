package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bellbot/bellbot-core/internal/school"
)

// schoolResponse is a school together with its registered device count.
type schoolResponse struct {
	school.School
	DeviceCount int `json:"device_count"`
}

// handleListSchools returns all schools with device counts. Managers and
// users only see their own school.
func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := s.schools.List(r.Context())
	if err != nil {
		s.logger.Error("listing schools failed", "error", err)
		writeInternalError(w, "failed to list schools")
		return
	}

	claims := claimsFrom(r.Context())
	out := []schoolResponse{}
	for _, sch := range schools {
		if !claims.CanAccessSchool(sch.ID) {
			continue
		}
		devices, err := s.devices.ListBySchool(r.Context(), sch.ID)
		if err != nil {
			s.logger.Error("counting devices failed", "school_id", sch.ID, "error", err)
			writeInternalError(w, "failed to list schools")
			return
		}
		out = append(out, schoolResponse{School: sch, DeviceCount: len(devices)})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleGetSchool returns one school with its device count.
func (s *Server) handleGetSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !claimsFrom(r.Context()).CanAccessSchool(id) {
		writeForbidden(w, "school belongs to another account")
		return
	}

	sch, err := s.schools.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to load school")
		return
	}

	devices, err := s.devices.ListBySchool(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load school")
		return
	}

	writeJSON(w, http.StatusOK, schoolResponse{School: *sch, DeviceCount: len(devices)})
}

// schoolRequest is the request body for creating or updating a school.
type schoolRequest struct {
	Name string `json:"name"`
}

// handleCreateSchool registers a new school.
func (s *Server) handleCreateSchool(w http.ResponseWriter, r *http.Request) {
	var req schoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, "name is required")
		return
	}

	sch := &school.School{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name)}
	if err := s.schools.Create(r.Context(), sch); err != nil {
		s.logger.Error("creating school failed", "error", err)
		writeInternalError(w, "failed to create school")
		return
	}

	writeJSON(w, http.StatusCreated, schoolResponse{School: *sch})
}

// handleUpdateSchool renames a school.
func (s *Server) handleUpdateSchool(w http.ResponseWriter, r *http.Request) {
	var req schoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeBadRequest(w, "name is required")
		return
	}

	sch := &school.School{ID: chi.URLParam(r, "id"), Name: strings.TrimSpace(req.Name)}
	if err := s.schools.Update(r.Context(), sch); err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to update school")
		return
	}

	// The school name is part of the timetable identifier, so a rename
	// changes what controllers should report as current.
	s.republish(r.Context(), sch.ID)

	writeJSON(w, http.StatusOK, sch)
}

// handleDeleteSchool removes a school with no registered devices.
func (s *Server) handleDeleteSchool(w http.ResponseWriter, r *http.Request) {
	err := s.schools.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, school.ErrNotFound):
		writeNotFound(w, "school not found")
	case errors.Is(err, school.ErrHasDevices):
		writeConflict(w, "school still has registered devices")
	default:
		writeInternalError(w, "failed to delete school")
	}
}
