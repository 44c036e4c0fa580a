package server

import (
	"errors"
	"net/http"
	"strconv"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/review"
	"mercator-hq/aegis/pkg/server/types"
)

type reviewFlagsResponse struct {
	Count int                     `json:"count"`
	Flags []governance.ReviewFlag `json:"flags"`
}

type resolveFlagRequest struct {
	Status string `json:"status"`
}

// handleReviewFlags lists pending flags, high priority first. Reviewers
// need full or limited audit access.
func (s *Server) handleReviewFlags(w http.ResponseWriter, r *http.Request) {
	if !s.canReview(w, r) {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, types.NewInvalidRequestError("limit must be a non-negative integer", "limit", types.CodeInvalidValue))
			return
		}
		limit = n
	}

	flags := s.deps.Review.Pending(limit)
	writeJSON(w, http.StatusOK, reviewFlagsResponse{Count: len(flags), Flags: flags})
}

// handleResolveFlag records a reviewer's outcome for one flag.
func (s *Server) handleResolveFlag(w http.ResponseWriter, r *http.Request) {
	if !s.canReview(w, r) {
		return
	}

	var in resolveFlagRequest
	if errResp := s.decode(w, r, &in); errResp != nil {
		s.fail(w, r, errResp)
		return
	}

	flag, err := s.deps.Review.Resolve(r.PathValue("id"), in.Status)
	if err != nil {
		if errResp, ok := validationFailure(err); ok {
			s.fail(w, r, errResp)
			return
		}
		if errors.Is(err, review.ErrFlagNotFound) {
			s.fail(w, r, types.NewNotFoundError("review flag not found", ""))
			return
		}
		s.backendFailure(w, r, "review resolution", types.CodeInternalError, err)
		return
	}

	reviewer := ""
	if p, ok := principal(r); ok {
		reviewer = p.UserID
	}
	s.logger.InfoContext(r.Context(), "review flag resolved",
		"flag_id", flag.ID,
		"status", flag.Status,
		"reviewer", reviewer,
	)
	writeJSON(w, http.StatusOK, flag)
}

func (s *Server) canReview(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.Review == nil {
		s.fail(w, r, types.NewServiceUnavailableError("review queue is not configured"))
		return false
	}
	if p, ok := principal(r); ok && !p.CanExport() {
		s.fail(w, r, types.NewPermissionDeniedError("role may not review flags"))
		return false
	}
	return true
}
