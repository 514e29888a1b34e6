package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/service"
)

// MemberHandler serves the user endpoints.
type MemberHandler struct {
	members *service.MemberService
	catalog *service.CatalogService
	logger  zerolog.Logger
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(members *service.MemberService, catalog *service.CatalogService, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{
		members: members,
		catalog: catalog,
		logger:  logger.With().Str("handler", "member").Logger(),
	}
}

// RegisterRoutes registers member routes.
func (h *MemberHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/users", h.handleListUsers)
	r.Post("/api/users", h.handleRegisterUser)
	r.Get("/api/users/{userID}", h.handleGetUser)
	r.Get("/api/users/{userID}/books", h.handleListBorrowed)
}

// registerUserRequest is the JSON body for POST /api/users.
type registerUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

func (h *MemberHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	out, err := h.members.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	users := out.Users
	if users == nil {
		users = []*domain.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *MemberHandler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.members.GetOrRegisterUser(r.Context(), service.RegisterUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidName) || errors.Is(err, service.ErrInvalidEmail) {
			writeValidationError(w, err)
			return
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, out.User)
}

func (h *MemberHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	out, err := h.members.GetUser(r.Context(), service.GetUserInput{UserID: userID})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, out.User)
}

func (h *MemberHandler) handleListBorrowed(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	out, err := h.catalog.ListCopiesByUser(r.Context(), service.ListCopiesByUserInput{UserID: userID})
	if err != nil {
		writeError(w, err)
		return
	}

	copies := out.Copies
	if copies == nil {
		copies = []*domain.CopyDetail{}
	}
	writeJSON(w, http.StatusOK, copies)
}
