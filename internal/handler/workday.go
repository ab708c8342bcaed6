package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"corpchat-backend/internal/auth"
	"corpchat-backend/internal/i18n"
	"corpchat-backend/internal/model"
	"corpchat-backend/internal/service"
)

// TeamDirectory lists the users a team-wide status query covers.
type TeamDirectory interface {
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

type WorkdayHandler struct {
	svc  *service.WorkdayService
	team TeamDirectory
	log  *zap.SugaredLogger
}

// NewWorkdayHandler builds the handler; team may be nil, in which case team
// queries must name their ids explicitly.
func NewWorkdayHandler(svc *service.WorkdayService, team TeamDirectory, log *zap.SugaredLogger) *WorkdayHandler {
	return &WorkdayHandler{svc: svc, team: team, log: log}
}

// ErrorResponse is the body of every non-2xx workday response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HandleToday returns the caller's workday for the current organizational day.
func (h *WorkdayHandler) HandleToday(w http.ResponseWriter, r *http.Request) {
	dto, err := h.svc.GetToday(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// HandleAction applies the {action} path segment to the caller's workday.
func (h *WorkdayHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	action, ok := model.ParseAction(r.PathValue("action"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: i18n.T(r.Context(), "workday.unknown_action"),
			Code:  "unknown_action",
		})
		return
	}

	dto, err := h.svc.Apply(r.Context(), auth.UserIDFromContext(r.Context()), action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// HandleTeam returns today's workday for many users keyed by user id.
// Ids come from ?ids=a,b or, without it, from the user directory.
func (h *WorkdayHandler) HandleTeam(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		if h.team == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: i18n.T(r.Context(), "workday.missing_ids"),
				Code:  "missing_ids",
			})
			return
		}
		var err error
		ids, err = h.team.ListActiveUserIDs(r.Context())
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %w", service.ErrStorageUnavailable, err))
			return
		}
	}

	result, err := h.svc.GetManyToday(r.Context(), ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RegisterRoutes registers all workday routes on the given mux. authn wraps
// every route; managers additionally guards the team view.
func (h *WorkdayHandler) RegisterRoutes(mux *http.ServeMux, authn, managers func(http.Handler) http.Handler) {
	mux.Handle("GET /api/workday/today", authn(http.HandlerFunc(h.HandleToday)))
	mux.Handle("POST /api/workday/{action}", authn(http.HandlerFunc(h.HandleAction)))
	mux.Handle("GET /api/workday/team", authn(managers(http.HandlerFunc(h.HandleTeam))))
}

func (h *WorkdayHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var te *model.TransitionError
	switch {
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: i18n.T(ctx, "workday.invalid_transition", map[string]any{
				"Action": i18n.T(ctx, "action."+string(te.Action)),
				"Status": i18n.T(ctx, "status."+string(te.Status)),
			}),
			Code: "invalid_transition",
		})
	case errors.Is(err, service.ErrMissingUser):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: i18n.T(ctx, "workday.missing_user"),
			Code:  "missing_user",
		})
	case errors.Is(err, service.ErrConflict):
		h.log.Warnw("workday conflict", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: i18n.T(ctx, "workday.conflict"),
			Code:  "conflict",
		})
	default:
		h.log.Errorw("workday request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: i18n.T(ctx, "workday.storage_unavailable"),
			Code:  "storage_unavailable",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
