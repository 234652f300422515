// Package api holds the JSON envelope shared by every tutorfitd endpoint:
// {"data": ...} on success and {"error": ..., "code": ...} on failure.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

type SuccessResponse struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:       http.StatusBadRequest,
	domain.ErrCodeInvalidOperation: http.StatusBadRequest,
	domain.ErrCodeNotFound:         http.StatusNotFound,
	domain.ErrCodeAlreadyExists:    http.StatusConflict,
	domain.ErrCodeUpstream:         http.StatusBadGateway,
	domain.ErrCodeInternalError:    http.StatusInternalServerError,
}

// JSON writes data with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, SuccessResponse{Data: data})
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps an error's domain code to a status. Errors without
// a known code are 500.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes err as an error envelope. Domain errors expose their
// message but never the wrapped cause; anything else is a generic 500.
func HandleError(w http.ResponseWriter, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		JSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  domain.ErrCodeInternalError,
		})
		return
	}
	JSON(w, DomainErrorToHTTP(err), ErrorResponse{Error: de.Message, Code: de.Code})
}

// DecodeJSON reads the request body into v and writes the error response
// itself when it fails. An empty body is accepted only when allowEmpty.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "request body exceeds limit")
	case errors.Is(err, io.EOF):
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: "request body is required", Code: domain.ErrCodeValidation})
	default:
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: domain.ErrCodeValidation})
	}
	return false
}
