package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/service"
)

// LendingHandler serves the borrow, return and history endpoints.
type LendingHandler struct {
	lending *service.LendingService
	logger  zerolog.Logger
}

// NewLendingHandler creates a new LendingHandler.
func NewLendingHandler(lending *service.LendingService, logger zerolog.Logger) *LendingHandler {
	return &LendingHandler{
		lending: lending,
		logger:  logger.With().Str("handler", "lending").Logger(),
	}
}

// RegisterRoutes registers lending routes.
func (h *LendingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/users/{userID}/borrow/byCopyId/{copyID}", h.handleBorrow)
	r.Post("/api/users/{userID}/return/byCopyId/{copyID}", h.handleReturn)
	r.Get("/api/copies/{copyID}", h.handleCopyState)
	r.Get("/api/copies/{copyID}/history", h.handleCopyHistory)
	r.Get("/api/users/{userID}/history", h.handleUserHistory)
}

// outcomeResponse is the JSON body for borrow and return attempts.
type outcomeResponse struct {
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

// outcomeStatus maps a failed outcome to its HTTP status code.
func outcomeStatus(reason service.FailureReason) int {
	switch reason {
	case service.ReasonCopyNotFound, service.ReasonUserNotFound:
		return http.StatusNotFound
	case service.ReasonNotHolder:
		return http.StatusForbidden
	default:
		// unavailable, already_available and lost races are conflicts
		// with the current lending state.
		return http.StatusConflict
	}
}

func (h *LendingHandler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	copyID, ok := uuidParam(w, r, "copyID")
	if !ok {
		return
	}

	out, err := h.lending.BorrowCopy(r.Context(), service.BorrowCopyInput{
		UserID: userID,
		CopyID: copyID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if !out.Succeeded {
		writeJSON(w, outcomeStatus(out.Reason), outcomeResponse{
			Succeeded: false,
			Reason:    string(out.Reason),
		})
		return
	}

	writeJSON(w, http.StatusOK, outcomeResponse{Succeeded: true})
}

func (h *LendingHandler) handleReturn(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	copyID, ok := uuidParam(w, r, "copyID")
	if !ok {
		return
	}

	out, err := h.lending.ReturnCopy(r.Context(), service.ReturnCopyInput{
		UserID: userID,
		CopyID: copyID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if !out.Succeeded {
		writeJSON(w, outcomeStatus(out.Reason), outcomeResponse{
			Succeeded: false,
			Reason:    string(out.Reason),
		})
		return
	}

	writeJSON(w, http.StatusOK, outcomeResponse{Succeeded: true})
}

func (h *LendingHandler) handleCopyState(w http.ResponseWriter, r *http.Request) {
	copyID, ok := uuidParam(w, r, "copyID")
	if !ok {
		return
	}

	out, err := h.lending.GetCopyState(r.Context(), service.GetCopyStateInput{CopyID: copyID})
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{
		"id":        copyID,
		"available": out.State.Available,
	}
	if out.State.HolderID != nil {
		body["holder_id"] = *out.State.HolderID
		if out.HolderName != "" {
			body["holder_name"] = out.HolderName
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *LendingHandler) handleCopyHistory(w http.ResponseWriter, r *http.Request) {
	copyID, ok := uuidParam(w, r, "copyID")
	if !ok {
		return
	}

	out, err := h.lending.GetCopyHistory(r.Context(), service.GetCopyHistoryInput{CopyID: copyID})
	if err != nil {
		writeError(w, err)
		return
	}

	events := out.Events
	if events == nil {
		events = []*domain.LendingEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *LendingHandler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}

	out, err := h.lending.GetUserHistory(r.Context(), service.GetUserHistoryInput{UserID: userID})
	if err != nil {
		writeError(w, err)
		return
	}

	events := out.Events
	if events == nil {
		events = []*domain.LendingEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
