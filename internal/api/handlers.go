// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"ghusers/internal/document"
	"ghusers/internal/errors"
	"ghusers/internal/logging"
	"ghusers/internal/txn"
	"ghusers/internal/validation"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UserService is what the handlers need from users.Service.
type UserService interface {
	ListUsers(ctx context.Context) (document.Document, error)
	FindUsers(ctx context.Context, filter string) ([]document.User, error)
	GetUser(ctx context.Context, id int) (document.User, error)
	InsertUser(ctx context.Context, username, status string) (document.User, error)
	EditUser(ctx context.Context, id int, username, status string) error
	DeleteUser(ctx context.Context, id int) error
	Subscribe() (<-chan txn.Progress, func())
}

type UserHandler struct {
	svc    UserService
	logger *logging.Logger
}

func NewUserHandler(svc UserService, logger *logging.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		doc, err := h.svc.ListUsers(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	users, err := h.svc.FindUsers(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, document.Document{Users: users})
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeUserRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.svc.InsertUser(r.Context(), req.Username, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	req, err := validation.DecodeUserRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.EditUser(r.Context(), id, req.Username, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.DeleteUser(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.ValidationError("invalid user id", map[string]string{"id": raw})
	}
	return id, nil
}

// writeError renders err as the JSON form of *errors.Error. Untyped errors
// become INTERNAL without leaking their text.
func (h *UserHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var typed *errors.Error
	if !stderrors.As(err, &typed) {
		typed = errors.Internal("internal server error", err)
	}

	logger := h.logger.WithRequestID(r.Context())
	if typed.Code >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("type", string(typed.Type)), zap.Error(err))
	} else {
		logger.Debug("request refused", zap.String("type", string(typed.Type)), zap.Error(err))
	}
	if typed.Cleanup != nil {
		logger.Warn("transaction branches left behind", zap.Error(typed.Cleanup))
	}

	writeJSON(w, typed.Code, typed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
