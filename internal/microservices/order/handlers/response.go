package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/domain/dto"
)

const maxBodyBytes = 1 << 20

// Problem is an RFC 7807 error body. Only the fields relevant to the failure
// are filled in.
type Problem struct {
	Type       string           `json:"type"`
	Title      string           `json:"title"`
	Status     int              `json:"status"`
	Detail     string           `json:"detail,omitempty"`
	Errors     []dto.FieldError `json:"errors,omitempty"`
	Shortfalls []dao.Shortfall  `json:"shortfalls,omitempty"`
	Current    dao.Status       `json:"current_status,omitempty"`
	Allowed    []dao.Status     `json:"allowed,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	body, _ := json.Marshal(p)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_, _ = w.Write(body)
}

func respondBadRequest(w http.ResponseWriter, detail string) {
	respondWithProblem(w, Problem{Status: http.StatusBadRequest, Detail: detail})
}

// respondWithError maps service errors onto HTTP statuses. Store failures
// are logged and answered with a generic 500.
func respondWithError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	p := Problem{Detail: err.Error()}

	var (
		validation   *dto.ValidationError
		insufficient *dao.InsufficientStockError
		transition   *dao.InvalidTransitionError
	)
	switch {
	case errors.As(err, &validation):
		p.Status, p.Title, p.Errors = http.StatusBadRequest, "Invalid order", validation.Fields
	case errors.Is(err, dao.ErrInvalidOrder):
		p.Status, p.Title = http.StatusBadRequest, "Invalid order"
	case errors.Is(err, dao.ErrOrderNotFound), errors.Is(err, dao.ErrProductNotFound), errors.Is(err, dao.ErrIngredientNotFound):
		p.Status = http.StatusNotFound
	case errors.As(err, &insufficient):
		p.Status, p.Title, p.Shortfalls = http.StatusConflict, "Insufficient stock", insufficient.Shortfalls
	case errors.As(err, &transition):
		p.Status, p.Title = http.StatusConflict, "Invalid state transition"
		p.Current, p.Allowed = transition.From, transition.Allowed
	case errors.Is(err, dao.ErrDuplicateOrderNumber):
		p.Status, p.Title = http.StatusConflict, "Duplicate order number"
	default:
		logger.FromContext(r.Context(), log).Error("request_failed", err, map[string]any{
			"method": r.Method, "path": r.URL.Path,
		})
		p.Status, p.Detail = http.StatusInternalServerError, "the request could not be completed"
	}
	respondWithProblem(w, p)
}

// decodeJSON reads the body into v. An empty body is accepted when optional.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	respondBadRequest(w, "invalid JSON body: "+err.Error())
	return false
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(w, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
