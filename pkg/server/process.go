package server

import (
	"encoding/json"
	"net/http"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/server/middleware"
	"mercator-hq/aegis/pkg/server/types"
	"mercator-hq/aegis/pkg/session"
)

type processRequest struct {
	Prompt    string         `json:"prompt"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

// handleProcess runs one prompt through the governance pipeline. Blocked
// requests are a normal 200 outcome with compliance status "blocked".
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, errResp := s.readBody(w, r)
	if errResp != nil {
		s.fail(w, r, errResp)
		return
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		s.fail(w, r, types.NewInvalidRequestError("request body is not valid JSON", "", types.CodeInvalidJSON))
		return
	}
	if err := s.schema.Validate(doc); err != nil {
		param, msg := schemaProblem(err)
		s.fail(w, r, types.NewInvalidRequestError(msg, param, types.CodeSchemaViolation))
		return
	}
	var in processRequest
	if err := json.Unmarshal(body, &in); err != nil {
		s.fail(w, r, types.NewInvalidRequestError("request body is not valid JSON", "", types.CodeInvalidJSON))
		return
	}

	req := governance.Request{
		ID:        middleware.GetRequestID(ctx),
		Prompt:    in.Prompt,
		UserID:    in.UserID,
		SessionID: in.SessionID,
		Context:   in.Context,
	}
	if p, ok := principal(r); ok {
		if in.UserID != "" && in.UserID != p.UserID {
			s.fail(w, r, types.NewPermissionDeniedError("user_id does not match the authenticated user"))
			return
		}
		req.UserID = p.UserID
		req.Role = p.Role
		if req.SessionID == "" {
			req.SessionID = p.SessionID
		}
	}

	if req.SessionID != "" && req.UserID != "" && s.deps.Sessions != nil {
		if _, err := session.Verify(ctx, s.deps.Sessions, req.SessionID, req.UserID); err != nil {
			s.logger.WarnContext(ctx, "session rejected", "session_id", req.SessionID, "error", err)
			s.fail(w, r, types.NewAuthenticationError("invalid or expired session"))
			return
		}
	}

	resp, err := s.deps.Pipeline.Process(ctx, req)
	if err != nil {
		if errResp, ok := validationFailure(err); ok {
			s.fail(w, r, errResp)
			return
		}
		s.backendFailure(w, r, "governance run", types.CodeInternalError, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
