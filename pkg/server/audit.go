package server

import (
	"net/http"
	"time"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/export"
	"mercator-hq/aegis/pkg/identity"
	"mercator-hq/aegis/pkg/server/types"
)

// defaultAnalyticsWindow is used when the caller gives no start time.
const defaultAnalyticsWindow = 24 * time.Hour

type auditLogsResponse struct {
	SessionID string                  `json:"session_id"`
	Count     int                     `json:"count"`
	Records   []*evidence.AuditRecord `json:"records"`
}

// handleAuditLogs returns the audit records of one session that the caller
// may read.
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	p, authed := principal(r)
	if authed && p.AuditAccess == identity.AuditAccessNone {
		s.fail(w, r, types.NewPermissionDeniedError("role has no audit access"))
		return
	}

	records, err := s.deps.Storage.QueryBySession(r.Context(), sessionID)
	if err != nil {
		s.backendFailure(w, r, "audit log query", types.CodeStorageError, err)
		return
	}

	visible := make([]*evidence.AuditRecord, 0, len(records))
	for _, rec := range records {
		if !authed || p.CanReadAuditOf(rec.UserID) {
			visible = append(visible, rec)
		}
	}

	writeJSON(w, http.StatusOK, auditLogsResponse{
		SessionID: sessionID,
		Count:     len(visible),
		Records:   visible,
	})
}

type exportRequest struct {
	Start  time.Time `json:"start_date"`
	End    time.Time `json:"end_date"`
	UserID string    `json:"user_id"`
	Format string    `json:"format"`
}

// handleExport exports the records of a window to the configured sink.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, authed := principal(r)
	if authed && !p.CanExport() {
		s.fail(w, r, types.NewPermissionDeniedError("role may not export audit records"))
		return
	}
	if s.deps.Exports == nil {
		s.fail(w, r, types.NewServiceUnavailableError("audit export is not configured"))
		return
	}

	var in exportRequest
	if errResp := s.decode(w, r, &in); errResp != nil {
		s.fail(w, r, errResp)
		return
	}

	req := export.Request{
		Start:  in.Start,
		End:    in.End,
		UserID: in.UserID,
		Format: in.Format,
	}
	if authed {
		req.RequestedBy = p.UserID
	}

	result, err := s.deps.Exports.Export(r.Context(), req)
	if err != nil {
		if errResp, ok := validationFailure(err); ok {
			s.fail(w, r, errResp)
			return
		}
		s.backendFailure(w, r, "audit export", types.CodeExportFailed, err)
		return
	}

	s.logger.InfoContext(r.Context(), "audit export completed",
		"export_id", result.ExportID,
		"records", result.RecordCount,
		"location", result.Location,
	)
	writeJSON(w, http.StatusCreated, result)
}

// handleAnalytics aggregates records between the start and end query
// parameters (RFC 3339). end defaults to now and start to 24 hours before
// end.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	p, authed := principal(r)
	if authed && !p.CanViewAnalytics() {
		s.fail(w, r, types.NewPermissionDeniedError("role may not view analytics"))
		return
	}

	end := s.now().UTC()
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.fail(w, r, types.NewInvalidRequestError("end must be an RFC 3339 timestamp", "end", types.CodeInvalidValue))
			return
		}
		end = t
	}
	start := end.Add(-defaultAnalyticsWindow)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.fail(w, r, types.NewInvalidRequestError("start must be an RFC 3339 timestamp", "start", types.CodeInvalidValue))
			return
		}
		start = t
	}

	analytics, err := evidence.Analyze(r.Context(), s.deps.Storage, start, end)
	if err != nil {
		if errResp, ok := validationFailure(err); ok {
			s.fail(w, r, errResp)
			return
		}
		s.backendFailure(w, r, "analytics", types.CodeStorageError, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}
