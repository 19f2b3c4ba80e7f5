// Package httpapi provides the REST adapter mounted under `/api/v1`.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hylla/tavla/internal/adapters/server/common"
	"github.com/hylla/tavla/internal/engine"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Handler serves the versioned board API.
type Handler struct {
	svc    *common.BoardService
	router chi.Router
}

// NewHandler builds the REST adapter over the shared board service.
func NewHandler(svc *common.BoardService) *Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, APIError{Code: "method_not_allowed", Message: "method not allowed"})
	})

	r.Route("/boards", func(r chi.Router) {
		r.Get("/", h.handleListBoards)
		r.Post("/", h.handleCreateBoard)
		r.Route("/{boardID}", func(r chi.Router) {
			r.Get("/", h.handleGetBoard)
			r.Patch("/", h.handleUpdateBoard)
			r.Delete("/", h.handleDeleteBoard)

			r.Get("/cards", h.handleListCards)
			r.Post("/cards", h.handleCreateCard)
			r.Post("/connections", h.handleConnectCards)
			r.Route("/cards/{cardID}", func(r chi.Router) {
				r.Get("/", h.handleGetCard)
				r.Post("/move", h.handleMoveCard)
				r.Delete("/", h.handleDeleteCard)
			})
		})
	})

	h.router = r
	return h
}

// ServeHTTP routes one API request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleListBoards(w http.ResponseWriter, r *http.Request) {
	includeArchived := strings.EqualFold(r.URL.Query().Get("include_archived"), "true")
	boards, err := h.svc.ListBoards(r.Context(), includeArchived)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

func (h *Handler) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req common.CreateBoardRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.svc.CreateBoard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

func (h *Handler) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.svc.GetBoard(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	var req common.UpdateBoardRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	board, err := h.svc.UpdateBoard(r.Context(), chi.URLParam(r, "boardID"), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBoard(r.Context(), chi.URLParam(r, "boardID")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.ListCards(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (h *Handler) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req common.CreateCardRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = chi.URLParam(r, "boardID")
	card, err := h.svc.CreateCard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (h *Handler) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.GetCard(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "cardID"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	var req common.MoveCardRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = chi.URLParam(r, "boardID")
	req.CardID = chi.URLParam(r, "cardID")
	card, err := h.svc.MoveCard(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCard(r.Context(), chi.URLParam(r, "boardID"), chi.URLParam(r, "cardID")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConnectCards(w http.ResponseWriter, r *http.Request) {
	var req common.ConnectCardsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.BoardID = chi.URLParam(r, "boardID")
	line, err := h.svc.ConnectCards(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "internal_error", Message: "unknown error"})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "invalid_request", Message: err.Error()})
	case errors.Is(err, engine.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: err.Error()})
	case errors.Is(err, engine.ErrCardLocked):
		writeJSONError(w, http.StatusConflict, APIError{Code: "card_locked", Message: err.Error()})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "internal_error", Message: err.Error()})
	}
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one JSON request body with strict shape checks.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	return nil
}
