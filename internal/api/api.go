// Package api exposes the reminder-mode REST surface.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"chickremind/internal/model"
	"chickremind/internal/push"
	"chickremind/internal/reminder"

	"github.com/gorilla/mux"
)

// Server bundles the handlers with their dependencies.
type Server struct {
	reminders *reminder.Service
	devices   *push.Registry
	logger    *log.Logger
}

// NewServer creates the API server.
func NewServer(reminders *reminder.Service, devices *push.Registry, logger *log.Logger) *Server {
	return &Server{reminders: reminders, devices: devices, logger: logger}
}

// Router builds the gorilla/mux router for reminder mode.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/reminders", s.handleCreateReminder).Methods("POST")
	r.HandleFunc("/api/reminders", s.handleListReminders).Methods("GET")
	r.HandleFunc("/api/reminders/{id:[0-9]+}", s.handleGetReminder).Methods("GET")
	r.HandleFunc("/api/reminders/{id:[0-9]+}", s.handleUpdateReminder).Methods("PATCH")
	r.HandleFunc("/api/reminders/{id:[0-9]+}", s.handleDeleteReminder).Methods("DELETE")
	r.HandleFunc("/api/reminders/{id:[0-9]+}/complete", s.handleCompleteReminder).Methods("POST")
	r.HandleFunc("/api/devices", s.handleRegisterDevice).Methods("POST")
	r.HandleFunc("/api/devices/{token}", s.handleRevokeDevice).Methods("DELETE")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var in reminder.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rem, err := s.reminders.Create(in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	filter := reminder.Filter{
		Category:    model.Category(r.URL.Query().Get("category")),
		PendingOnly: r.URL.Query().Get("pending") == "true",
	}

	reminders, err := s.reminders.List(filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminders)
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rem, err := s.reminders.Get(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var in reminder.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rem, err := s.reminders.Update(id, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.reminders.Delete(id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rem, err := s.reminders.Complete(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var reg push.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	token, err := s.devices.Register(reg)
	if err != nil {
		if errors.Is(err, push.ErrEmptyToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Printf("api: register device: %v", err)
		writeError(w, http.StatusInternalServerError, "could not register device")
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if err := s.devices.Revoke(token); err != nil {
		if errors.Is(err, push.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown token")
			return
		}
		s.logger.Printf("api: revoke device: %v", err)
		writeError(w, http.StatusInternalServerError, "could not revoke device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps reminder service errors to HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		writeError(w, http.StatusNotFound, "reminder not found")
	case errors.Is(err, reminder.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Printf("api: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reminder id")
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
