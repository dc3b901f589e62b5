package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentrail/core/internal/errs"
)

type startExecutionRequest struct {
	InputData map[string]any `json:"input_data"`
}

func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	workflowID := chi.URLParam(r, "workflowID")

	var req startExecutionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, errs.Wrap(errs.KindConfig, "decode request body", err))
			return
		}
	}

	exec, err := s.Interpreter.Start(r.Context(), tenantID, workflowID, req.InputData)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notifyIfWaitingApproval(r.Context(), tenantID, exec)
	writeJSON(w, http.StatusAccepted, exec)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	executionID := chi.URLParam(r, "executionID")

	exec, err := s.Interpreter.Store.GetExecution(r.Context(), tenantID, executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

type approveRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	executionID := chi.URLParam(r, "executionID")

	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errs.Wrap(errs.KindConfig, "decode request body", err))
		return
	}

	exec, err := s.Interpreter.ResumeApproval(r.Context(), tenantID, executionID, req.Approved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	executionID := chi.URLParam(r, "executionID")

	exec, err := s.Interpreter.Cancel(r.Context(), tenantID, executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleDeliverEvent(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	executionID := chi.URLParam(r, "executionID")
	eventName := chi.URLParam(r, "eventName")

	var payload any
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, errs.Wrap(errs.KindConfig, "decode request body", err))
			return
		}
	}

	exec, err := s.Interpreter.ResumeEvent(r.Context(), tenantID, executionID, eventName, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notifyIfWaitingApproval(r.Context(), tenantID, exec)
	writeJSON(w, http.StatusOK, exec)
}

// handleWorkerResume lets the worker pool ask the orchestrator to re-enter
// the interpreter loop for an execution it just dequeued a job for. Guarded
// by auth.RequireService("worker") — tenant callers never hit this route.
func (s *Server) handleWorkerResume(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	executionID := chi.URLParam(r, "executionID")

	exec, err := s.Interpreter.Resume(r.Context(), tenantID, executionID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.notifyIfWaitingApproval(r.Context(), tenantID, exec)
	writeJSON(w, http.StatusOK, exec)
}
