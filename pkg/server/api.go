package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ergbridge/ergbridge/pkg/common"
	"github.com/ergbridge/ergbridge/pkg/coordinator"
	"github.com/ergbridge/ergbridge/pkg/storage"
	"github.com/ergbridge/ergbridge/pkg/types"
)

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	data := s.coordinator.Data()
	if data == nil {
		writeJSONError(w, "no schedule yet", http.StatusNotFound)
		return
	}
	writeJSON(w, data)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Refresh(r.Context()); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, s.coordinator.Data())
}

type statusResponse struct {
	State       coordinator.State `json:"state"`
	Version     string            `json:"version"`
	LastError   string            `json:"last_error,omitempty"`
	LastRefresh *time.Time        `json:"last_refresh,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, lastErr, lastRefresh := s.coordinator.Status()
	resp := statusResponse{State: state, Version: common.Version()}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	if !lastRefresh.IsZero() {
		resp.LastRefresh = &lastRefresh
	}
	writeJSON(w, resp)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	slot := s.coordinator.SlotDuration()
	data := s.coordinator.Data()

	var events []coordinator.Event
	q := r.URL.Query()
	if q.Has("start") || q.Has("end") {
		start, err := parseQueryTime(q.Get("start"), time.Time{})
		if err != nil {
			writeJSONError(w, "invalid start: "+err.Error(), http.StatusBadRequest)
			return
		}
		end, err := parseQueryTime(q.Get("end"), start.AddDate(1, 0, 0))
		if err != nil {
			writeJSONError(w, "invalid end: "+err.Error(), http.StatusBadRequest)
			return
		}
		events = coordinator.EventsBetween(data, slot, start, end)
	} else {
		events = coordinator.BuildEvents(data, slot)
	}

	if events == nil {
		events = []coordinator.Event{}
	}
	writeJSON(w, events)
}

func (s *Server) handleNextEvent(w http.ResponseWriter, r *http.Request) {
	ev := coordinator.NextEvent(s.coordinator.Data(), s.coordinator.SlotDuration(), time.Now())
	if ev == nil {
		writeJSONError(w, "no upcoming events", http.StatusNotFound)
		return
	}
	writeJSON(w, ev)
}

func parseQueryTime(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return types.ParseInstant(raw)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.storage.ListJobs(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []types.JobDefinition{}
	}
	writeJSON(w, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.storage.GetJob(r.Context(), r.PathValue("entity"))
	if errors.Is(err, storage.ErrJobNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleUpsertJob(w http.ResponseWriter, r *http.Request) {
	var job types.JobDefinition
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSONError(w, "invalid job: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := job.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.storage.UpsertJob(r.Context(), job); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	err := s.storage.RemoveJob(r.Context(), r.PathValue("entity"))
	if errors.Is(err, storage.ErrJobNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := s.storage.ListTariffs(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tariffs == nil {
		tariffs = []types.TariffDefinition{}
	}
	writeJSON(w, tariffs)
}

func (s *Server) handleUpsertTariff(w http.ResponseWriter, r *http.Request) {
	var tariff types.TariffDefinition
	if err := json.NewDecoder(r.Body).Decode(&tariff); err != nil {
		writeJSONError(w, "invalid tariff: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := tariff.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.storage.UpsertTariff(r.Context(), tariff); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, tariff)
}

func (s *Server) handleRemoveTariff(w http.ResponseWriter, r *http.Request) {
	err := s.storage.RemoveTariff(r.Context(), r.PathValue("name"))
	if errors.Is(err, storage.ErrTariffNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetElapsed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.coordinator.Elapsed())
}

type setElapsedRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Server) handleSetElapsed(w http.ResponseWriter, r *http.Request) {
	var req setElapsedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Seconds < 0 {
		writeJSONError(w, "seconds cannot be negative", http.StatusBadRequest)
		return
	}
	entity := r.PathValue("entity")
	if err := s.coordinator.SetElapsed(r.Context(), entity, req.Seconds); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]float64{entity: req.Seconds})
}

func (s *Server) handleExecutorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"paused": s.executor.Paused()})
}

func (s *Server) handleExecutorPause(w http.ResponseWriter, r *http.Request) {
	s.executor.Pause()
	writeJSON(w, map[string]bool{"paused": true})
}

func (s *Server) handleExecutorResume(w http.ResponseWriter, r *http.Request) {
	s.executor.Resume()
	writeJSON(w, map[string]bool{"paused": false})
}
