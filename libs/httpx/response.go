package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(page, limit, total int) *Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// Error is an error that knows its HTTP status and a message safe to show clients.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *Error {
	return NewError(http.StatusBadRequest, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return NewError(http.StatusUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return NewError(http.StatusForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return NewError(http.StatusNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return NewError(http.StatusConflict, format, args...)
}

// Status reports the HTTP status carried by err, or 500.
func Status(err error) int {
	var he *Error
	if errors.As(err, &he) {
		return he.Status
	}
	return http.StatusInternalServerError
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, code int, data any) {
	WriteJSON(w, code, Envelope{Success: true, Data: data})
}

func WritePage(w http.ResponseWriter, data any, p *Pagination) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: p})
}

func WriteMessage(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, Envelope{Success: code < 400, Message: msg})
}

// WriteError renders err as a failure envelope. Errors without a status are logged
// and reported to the client as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var he *Error
	if errors.As(err, &he) {
		if he.Status >= 500 {
			if logger != nil {
				logger.Error("request failed", "request_id", RequestIDFromContext(r.Context()), "err", err)
			}
			reportError(r, err)
		}
		WriteMessage(w, he.Status, he.Message)
		return
	}
	if logger != nil {
		logger.Error("request failed", "request_id", RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
	}
	reportError(r, err)
	WriteMessage(w, http.StatusInternalServerError, "internal server error")
}

// DecodeJSON decodes a request body into dst, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return BadRequest("request body required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return NewError(http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			return BadRequest("request body required")
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return BadRequest("%s", strings.TrimPrefix(err.Error(), "json: "))
		default:
			return BadRequest("invalid json body")
		}
	}
	if dec.More() {
		return BadRequest("invalid json body")
	}
	return nil
}
