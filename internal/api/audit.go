package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tasmota/internal/audit"
)

// auditChanSize is the buffer of the async command log. Entries beyond it
// are dropped so a slow disk never holds up a device command.
const auditChanSize = 256

// logCommand enqueues a command log entry for the device named in the URL.
func (s *Server) logCommand(r *http.Request, action string, details map[string]any, start time.Time, err error) {
	if s.auditRepo == nil || s.auditCh == nil {
		return
	}

	entry := &audit.Entry{
		DeviceID:   chi.URLParam(r, "id"),
		Action:     action,
		Source:     subjectFrom(r.Context()),
		Outcome:    audit.OutcomeOK,
		Details:    details,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Outcome = classify(err).Code
		entry.Error = err.Error()
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("command log channel full, dropping entry",
			"device", entry.DeviceID,
			"action", action,
		)
	}
}

// drainAuditLog writes queued entries one at a time until ctx is done,
// then flushes whatever is left.
func (s *Server) drainAuditLog(ctx context.Context) {
	write := func(e *audit.Entry) {
		if err := s.auditRepo.Record(context.Background(), e); err != nil {
			s.logger.Error("command log write failed",
				"device", e.DeviceID,
				"action", e.Action,
				"error", err,
			)
		}
	}

	for {
		select {
		case e := <-s.auditCh:
			write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-s.auditCh:
					write(e)
				default:
					return
				}
			}
		}
	}
}

// handleListCommands serves the command log. Under /devices/{id} it is
// scoped to that device.
//
// Query parameters: action, outcome, since (RFC 3339), limit, offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID: chi.URLParam(r, "id"),
		Action:   q.Get("action"),
		Outcome:  q.Get("outcome"),
	}
	if filter.DeviceID == "" {
		filter.DeviceID = q.Get("device_id")
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = n
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command log", "error", err)
		writeInternalError(w, "failed to list command log")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
