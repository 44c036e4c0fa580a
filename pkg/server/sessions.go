package server

import (
	"errors"
	"net/http"
	"time"

	"mercator-hq/aegis/pkg/server/types"
	"mercator-hq/aegis/pkg/session"
)

type createSessionRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type createSessionResponse struct {
	Token     string           `json:"token,omitempty"`
	TokenType string           `json:"token_type,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
	Session   *session.Session `json:"session"`
}

// handleCreateSession opens a session. With authentication enabled it
// issues a bearer token bound to the new session; only admins may open
// sessions for another user or role. Without authentication it opens a
// session for the user id in the body.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in createSessionRequest
	if errResp := s.decode(w, r, &in); errResp != nil {
		s.fail(w, r, errResp)
		return
	}

	if p, ok := principal(r); ok && s.deps.Tokens != nil {
		userID, role := in.UserID, in.Role
		if userID == "" {
			userID = p.UserID
		}
		if role == "" {
			role = p.Role
		}
		if (userID != p.UserID || role != p.Role) && !p.Has("admin") {
			s.fail(w, r, types.NewPermissionDeniedError("only admins may open sessions for other users or roles"))
			return
		}

		token, sess, err := s.deps.Tokens.Issue(r.Context(), userID, role)
		if err != nil {
			s.backendFailure(w, r, "session creation", types.CodeInternalError, err)
			return
		}
		resp := createSessionResponse{Token: token, TokenType: "Bearer", Session: sess}
		if sess != nil {
			resp.ExpiresAt = sess.ExpiresAt
		}
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	if s.deps.Sessions == nil {
		s.fail(w, r, types.NewServiceUnavailableError("sessions are not configured"))
		return
	}
	if in.UserID == "" {
		s.fail(w, r, types.NewInvalidRequestError("user_id is required", "user_id", types.CodeMissingField))
		return
	}
	sess, err := s.deps.Sessions.Create(r.Context(), in.UserID, "")
	if err != nil {
		s.backendFailure(w, r, "session creation", types.CodeInternalError, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{ExpiresAt: sess.ExpiresAt, Session: sess})
}

// handleRevokeSession ends a session. Callers may revoke their own
// sessions; admins may revoke any.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		s.fail(w, r, types.NewServiceUnavailableError("sessions are not configured"))
		return
	}
	id := r.PathValue("id")

	if p, ok := principal(r); ok {
		sess, err := s.deps.Sessions.Get(r.Context(), id)
		if err != nil {
			s.sessionFailure(w, r, err)
			return
		}
		if sess.UserID != p.UserID && !p.Has("admin") {
			s.fail(w, r, types.NewPermissionDeniedError("session belongs to another user"))
			return
		}
	}

	if err := s.deps.Sessions.Revoke(r.Context(), id); err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
		s.fail(w, r, types.NewNotFoundError("session not found", types.CodeSessionNotFound))
		return
	}
	s.backendFailure(w, r, "session lookup", types.CodeInternalError, err)
}
