package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/desertthunder/subsync/internal/shared"
	"github.com/go-chi/chi/v5"
)

// userHeader carries the authenticated user's id. Authentication itself is a
// deployment concern handled upstream of this service.
const userHeader = "X-User-ID"

func (s *Server) handleInitiateSync(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+userHeader+" header")
		return
	}

	result, err := s.admission.InitiateSync(r.Context(), userID)
	if err != nil {
		var rateLimited *shared.RateLimitedError
		if errors.As(err, &rateLimited) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":             rateLimited.Error(),
				"retryAfterSeconds": rateLimited.RetryAfterSeconds,
			})
			return
		}
		if errors.Is(err, shared.ErrUserRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("sync admission failed", "userId", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to initiate sync")
		return
	}

	status := http.StatusAccepted
	if result.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	// missing jobs come back with the not_found status, still HTTP 200;
	// clients poll this endpoint and expiry is an expected terminal answer
	resp, err := s.tracker.JobStatus(r.Context(), jobID)
	if err != nil {
		s.logger.Error("job status lookup failed", "jobId", jobID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActiveJob(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing "+userHeader+" header")
		return
	}

	resp, err := s.tracker.ActiveJob(r.Context(), userID)
	if err != nil {
		s.logger.Error("active job lookup failed", "userId", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load active job")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.dlq.ListEntries(r.Context(), limit)
	if err != nil {
		s.logger.Error("dlq list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list dead-letter entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleDLQSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dlq.Summary(r.Context())
	if err != nil {
		s.logger.Error("dlq summary failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize dead-letter queue")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteDLQ(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	existed, err := s.dlq.DeleteEntry(r.Context(), entryID)
	if err != nil {
		s.logger.Error("dlq delete failed", "entryId", entryID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete dead-letter entry")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
