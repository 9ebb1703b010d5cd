package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bellbot/bellbot-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Put("/auth/password", s.handleChangePassword)

			// WS ticket requires authentication; the ticket then
			// authenticates the WebSocket upgrade itself.
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// School endpoints
			r.Route("/schools", func(r chi.Router) {
				r.Get("/", s.handleListSchools)
				r.Get("/{id}", s.handleGetSchool)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermSchoolManage))
					r.Post("/", s.handleCreateSchool)
					r.Patch("/{id}", s.handleUpdateSchool)
					r.Delete("/{id}", s.handleDeleteSchool)
				})
			})

			// User endpoints (admin only)
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Patch("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Put("/{id}/password", s.handleResetPassword)
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)

				// Commands any operator can issue
				r.Post("/{id}/ring", s.handleRingDevice)
				r.Post("/{id}/status", s.handleDeviceStatus)
				r.Post("/{id}/check", s.handleDeviceCheck)
				r.Put("/{id}/silence", s.handleSilenceDevice)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDeviceConfigure))
					r.Post("/", s.handleCreateDevice)
					r.Patch("/{id}", s.handleUpdateDevice)
					r.Delete("/{id}", s.handleDeleteDevice)
					r.Post("/{id}/time", s.handlePushTime)
					r.Post("/{id}/assign", s.handleAssignDevice)
					r.Delete("/{id}/assign/{userID}", s.handleUnassignDevice)
				})
			})

			// Timetable endpoints
			r.Route("/timetables", func(r chi.Router) {
				r.Route("/school/{schoolID}", func(r chi.Router) {
					r.Get("/", s.handleGetSchedule)
					r.Get("/special-days", s.handleListSpecialDays)
					r.Get("/presets", s.handleListPresets)

					r.Group(func(r chi.Router) {
						r.Use(s.requirePermission(auth.PermTimetableManage))
						r.Put("/day/{day}", s.handleUpdateDay)
						r.Post("/publish", s.handlePublishTimetable)
						r.Post("/special-days", s.handleCreateSpecialDay)
						r.Post("/presets", s.handleCreatePreset)
					})
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermTimetableManage))
					r.Patch("/presets/{id}", s.handleUpdatePreset)
					r.Delete("/presets/{id}", s.handleDeletePreset)
					r.Delete("/special-days/{id}", s.handleDeleteSpecialDay)
				})
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
