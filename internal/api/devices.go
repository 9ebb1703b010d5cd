package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bellbot/bellbot-core/internal/auth"
	"github.com/bellbot/bellbot-core/internal/bellnet"
	"github.com/bellbot/bellbot-core/internal/device"
)

// defaultRingSeconds is the manual ring duration when the request omits one.
const defaultRingSeconds = 5

// handleListDevices returns devices visible to the caller: all of them for
// admins, the school's for managers, assigned ones for plain users.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var (
		devices []device.Device
		err     error
	)
	switch {
	case claims.Role == auth.RoleUser:
		devices, err = s.devices.ListForUser(r.Context(), claims.Subject)
	case auth.IsSchoolScoped(claims.Role):
		devices, err = s.devices.ListBySchool(r.Context(), claims.SchoolID)
	default:
		devices, err = s.devices.List(r.Context())
	}
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

// loadDevice fetches the device from the URL and enforces school scoping.
// Writes the error response itself; a nil return means the response is done.
func (s *Server) loadDevice(w http.ResponseWriter, r *http.Request) *device.Device {
	dev, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
		} else {
			writeInternalError(w, "failed to load device")
		}
		return nil
	}
	if !claimsFrom(r.Context()).CanAccessSchool(dev.SchoolID) {
		writeForbidden(w, "device belongs to another school")
		return nil
	}
	return dev
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if dev := s.loadDevice(w, r); dev != nil {
		writeJSON(w, http.StatusOK, dev)
	}
}

// deviceRequest is the request body for creating or updating a device.
type deviceRequest struct {
	Serial   string `json:"serial"`
	SchoolID string `json:"school_id"`
	Location string `json:"location"`
	Model    string `json:"model"`
}

// handleCreateDevice registers a new bell controller.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !claimsFrom(r.Context()).CanAccessSchool(req.SchoolID) {
		writeForbidden(w, "cannot register devices for another school")
		return
	}

	dev := &device.Device{
		ID:       uuid.NewString(),
		Serial:   req.Serial,
		SchoolID: req.SchoolID,
		Location: req.Location,
		Model:    req.Model,
	}
	err := s.devices.Create(r.Context(), dev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, dev)
	case errors.Is(err, device.ErrInvalidSerial):
		writeBadRequest(w, "serial must be alphanumeric with dashes or underscores")
	case errors.Is(err, device.ErrExists):
		writeConflict(w, "serial already registered")
	default:
		s.logger.Error("creating device failed", "error", err)
		writeInternalError(w, "failed to create device")
	}
}

// handleUpdateDevice modifies a device's admin fields. The serial is
// immutable; connectivity fields belong to the dispatcher.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SchoolID != "" {
		if !claimsFrom(r.Context()).CanAccessSchool(req.SchoolID) {
			writeForbidden(w, "cannot move devices to another school")
			return
		}
		dev.SchoolID = req.SchoolID
	}
	if req.Location != "" {
		dev.Location = req.Location
	}
	if req.Model != "" {
		dev.Model = req.Model
	}

	if err := s.devices.Update(r.Context(), dev); err != nil {
		writeInternalError(w, "failed to update device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device registration.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}
	if err := s.devices.Delete(r.Context(), dev.ID); err != nil {
		writeInternalError(w, "failed to delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ringRequest is the request body for POST /devices/{id}/ring.
type ringRequest struct {
	Duration int `json:"duration"`
}

// handleRingDevice commands a manual bell ring.
func (s *Server) handleRingDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	req := ringRequest{Duration: defaultRingSeconds}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	if req.Duration < 1 || req.Duration > 60 {
		writeBadRequest(w, "duration must be 1-60 seconds")
		return
	}

	if err := s.publisher.Ring(dev.Serial, req.Duration); err != nil {
		s.logger.Error("ring command failed", "serial", dev.Serial, "error", err)
		writeInternalError(w, "failed to send ring command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ring sent",
		"serial":   dev.Serial,
		"duration": req.Duration,
	})
}

// handleDeviceStatus polls a controller over the legacy status topics and
// waits for its reply.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	ch, err := s.publisher.RequestStatus(dev.Serial)
	if err != nil {
		s.logger.Error("status request failed", "serial", dev.Serial, "error", err)
		writeInternalError(w, "failed to send status request")
		return
	}

	res := <-ch
	switch res.Outcome {
	case bellnet.OutcomeResolved:
		var body any
		if err := json.Unmarshal(res.Payload, &body); err != nil {
			body = string(res.Payload)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"serial": dev.Serial,
			"status": body,
		})
	case bellnet.OutcomeSuperseded:
		writeConflict(w, "a newer status request replaced this one")
	default:
		writeDeviceTimeout(w, "device did not answer in time")
	}
}

// handleDeviceCheck runs a comprehensive status check and returns the
// device record as updated by the dispatcher. The dispatcher persists the
// report before resolving, so the re-read below sees it.
func (s *Server) handleDeviceCheck(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	ch, err := s.publisher.RequestComprehensiveStatus(dev.Serial)
	if err != nil {
		s.logger.Error("check request failed", "serial", dev.Serial, "error", err)
		writeInternalError(w, "failed to send status check")
		return
	}

	res := <-ch
	switch res.Outcome {
	case bellnet.OutcomeResolved:
		updated, err := s.devices.GetByID(r.Context(), dev.ID)
		if err != nil {
			writeInternalError(w, "failed to reload device")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case bellnet.OutcomeSuperseded:
		writeConflict(w, "a newer status check replaced this one")
	default:
		writeDeviceTimeout(w, "device did not answer in time")
	}
}

// handlePushTime pushes the server's local time to a controller.
func (s *Server) handlePushTime(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}
	if err := s.publisher.PushTime(dev.Serial); err != nil {
		writeInternalError(w, "failed to push time")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "time pushed", "serial": dev.Serial})
}

// silenceRequest is the request body for PUT /devices/{id}/silence.
type silenceRequest struct {
	Silenced bool `json:"silenced"`
}

// handleSilenceDevice persists the silenced flag and publishes the command.
func (s *Server) handleSilenceDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	var req silenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.devices.SetSilenced(r.Context(), dev.Serial, req.Silenced); err != nil {
		writeInternalError(w, "failed to update device")
		return
	}
	if err := s.publisher.SetSilence(dev.Serial, req.Silenced); err != nil {
		s.logger.Error("silence command failed", "serial", dev.Serial, "error", err)
		writeInternalError(w, "silence recorded but command failed to send")
		return
	}

	dev.IsSilenced = req.Silenced
	writeJSON(w, http.StatusOK, dev)
}

// assignRequest is the request body for POST /devices/{id}/assign.
type assignRequest struct {
	UserID string `json:"user_id"`
}

// handleAssignDevice links a user to a device.
func (s *Server) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	err := s.devices.Assign(r.Context(), dev.ID, req.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{
			"device_id": dev.ID,
			"user_id":   req.UserID,
		})
	case errors.Is(err, device.ErrAssignmentExists):
		writeConflict(w, "user already assigned to this device")
	default:
		writeInternalError(w, "failed to assign device")
	}
}

// handleUnassignDevice removes a user-device link.
func (s *Server) handleUnassignDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.loadDevice(w, r)
	if dev == nil {
		return
	}

	err := s.devices.Unassign(r.Context(), dev.ID, chi.URLParam(r, "userID"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, device.ErrAssignmentNotFound):
		writeNotFound(w, "assignment not found")
	default:
		writeInternalError(w, "failed to remove assignment")
	}
}
