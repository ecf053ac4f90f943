// Package http wires the replay service to its REST API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mosaicrl/replay/internal/middleware"
	"github.com/mosaicrl/replay/internal/replay"
	"github.com/mosaicrl/replay/internal/service"
	"github.com/mosaicrl/replay/internal/storage"
)

// Server wires HTTP handlers to the replay service.
type Server struct {
	svc          *service.Service
	logger       zerolog.Logger
	maxBodyBytes int64
}

// NewServer constructs a Server instance.
func NewServer(svc *service.Service, logger zerolog.Logger, maxBodyBytes int64) *Server {
	return &Server{svc: svc, logger: logger, maxBodyBytes: maxBodyBytes}
}

// Routes builds the HTTP router for the replay service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/buffers", s.handleCreateBuffer)
		r.Get("/buffers/{bufferID}", s.handleStats)
		r.Post("/buffers/{bufferID}/transitions", s.handleAppend)
		r.Post("/buffers/{bufferID}/sample", s.handleSample)
		r.Post("/buffers/{bufferID}/priorities", s.handleUpdatePriorities)
		r.Post("/buffers/{bufferID}/reset", s.handleReset)
		r.Post("/buffers/{bufferID}/snapshot", s.handleSnapshot)
		r.Post("/snapshots/{snapshotID}/restore", s.handleRestore)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBuffer(w http.ResponseWriter, r *http.Request) {
	var spec service.BufferSpec
	if !s.decode(w, r, &spec) {
		return
	}

	info, err := s.svc.CreateBuffer(r.Context(), spec)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Stats(r.Context(), chi.URLParam(r, "bufferID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Transitions []replay.Transition `json:"transitions"`
		Priorities  []float64           `json:"priorities,omitempty"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	if len(payload.Transitions) == 0 {
		s.writeError(w, http.StatusBadRequest, "transitions are required")
		return
	}

	result, err := s.svc.Append(r.Context(), chi.URLParam(r, "bufferID"), payload.Transitions, payload.Priorities)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BatchSize  int  `json:"batch_size"`
		BatchFirst bool `json:"batch_first,omitempty"`
	}
	if !s.decode(w, r, &payload) {
		return
	}

	result, err := s.svc.Sample(r.Context(), chi.URLParam(r, "bufferID"), payload.BatchSize, payload.BatchFirst)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdatePriorities(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Errors  []float64 `json:"errors"`
		Indices []int     `json:"indices"`
	}
	if !s.decode(w, r, &payload) {
		return
	}

	if err := s.svc.UpdatePriorities(r.Context(), chi.URLParam(r, "bufferID"), payload.Errors, payload.Indices); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"updated": len(payload.Indices)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Reset(r.Context(), chi.URLParam(r, "bufferID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	bufferID := chi.URLParam(r, "bufferID")
	snapshotID, err := s.svc.Snapshot(r.Context(), bufferID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{
		"snapshot_id": snapshotID,
		"buffer_id":   bufferID,
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Restore(r.Context(), chi.URLParam(r, "snapshotID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidSpec):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrKindMismatch):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		// Contract violations surfaced by the engines.
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
