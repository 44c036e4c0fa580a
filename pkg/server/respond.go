package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/identity"
	"mercator-hq/aegis/pkg/server/middleware"
	"mercator-hq/aegis/pkg/server/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, resp *types.ErrorResponse) {
	resp.WithRequestID(middleware.GetRequestID(r.Context())).Write(w)
}

// readBody reads a JSON body bounded by server.max_body_bytes.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *types.ErrorResponse) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewInvalidRequestError("request body too large", "", types.CodeRequestTooLarge)
		}
		return nil, types.NewInvalidRequestError("failed to read request body", "", types.CodeInvalidJSON)
	}
	return body, nil
}

// decode reads and unmarshals a JSON body into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) *types.ErrorResponse {
	body, errResp := s.readBody(w, r)
	if errResp != nil {
		return errResp
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return types.NewInvalidRequestError("request body is not valid JSON", "", types.CodeInvalidJSON)
	}
	return nil
}

// validationFailure maps a governance validation error to a 400.
func validationFailure(err error) (*types.ErrorResponse, bool) {
	var ve *governance.ValidationError
	if !errors.As(err, &ve) {
		return nil, false
	}
	return types.NewInvalidRequestError(ve.Message, ve.Field, types.CodeInvalidValue), true
}

// backendFailure logs err and answers 504 for deadlines, 500 otherwise.
func (s *Server) backendFailure(w http.ResponseWriter, r *http.Request, op, code string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.WarnContext(r.Context(), op+" timed out", "error", err)
		s.fail(w, r, types.NewGatewayTimeoutError("the request took too long to complete"))
		return
	}
	s.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	s.fail(w, r, types.NewServerError("the request could not be completed", code))
}

// principal returns the authenticated caller. ok is false when
// authentication is disabled.
func principal(r *http.Request) (*identity.Principal, bool) {
	return identity.FromContext(r.Context())
}
