package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"

	"github.com/rs/zerolog/log"
)

// APIResponse 标准API响应结构
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Details string      `json:"details,omitempty"`
}

// WriteJSON writes v as-is, without the envelope (webhook acks use this)
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	WriteJSON(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse 写入创建成功响应
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteErrorResponseWithCode 写入带错误代码的错误响应
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message, details string) {
	WriteJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   code,
		Message: message,
		Details: details,
	})
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "BAD_REQUEST", message, "")
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", message, "")
}

// WriteForbiddenResponse 写入403错误响应
func WriteForbiddenResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusForbidden, "FORBIDDEN", message, "")
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_FOUND", message, "")
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, "")
}

// WriteValidationErrorResponse 写入验证错误响应
func WriteValidationErrorResponse(w http.ResponseWriter, message string, details string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "VALIDATION_ERROR", message, details)
}

// WriteAppError maps the apperrors taxonomy onto a status code and error code.
// Anything unrecognised is a 500 and its message is not echoed to the client.
func WriteAppError(w http.ResponseWriter, err error) {
	var pe *apperrors.ProviderError
	switch {
	case errors.Is(err, apperrors.ErrUnauthenticated):
		WriteUnauthorizedResponse(w, err.Error())
	case errors.Is(err, apperrors.ErrNotAMember),
		errors.Is(err, apperrors.ErrInsufficientRole),
		errors.Is(err, apperrors.ErrForbidden):
		WriteForbiddenResponse(w, err.Error())
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrNoOrganization):
		WriteNotFoundResponse(w, err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		WriteValidationErrorResponse(w, err.Error(), "")
	case errors.Is(err, apperrors.ErrInvalidSignature):
		WriteErrorResponseWithCode(w, http.StatusBadRequest, "INVALID_SIGNATURE", err.Error(), "")
	case errors.Is(err, apperrors.ErrInsufficientCredits):
		WriteErrorResponseWithCode(w, http.StatusConflict, "INSUFFICIENT_CREDITS", err.Error(), "")
	case errors.Is(err, apperrors.ErrInvalidTransition), errors.Is(err, apperrors.ErrConflict):
		WriteErrorResponseWithCode(w, http.StatusConflict, "CONFLICT", err.Error(), "")
	case errors.Is(err, apperrors.ErrNotImplemented):
		WriteErrorResponseWithCode(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", err.Error(), "")
	case errors.As(err, &pe):
		log.Error().Err(pe.Err).Str("provider", pe.Provider).Str("op", pe.Op).Msg("payment provider call failed")
		WriteErrorResponseWithCode(w, http.StatusInternalServerError, "PROVIDER_ERROR", "Payment provider request failed", "")
	default:
		log.Error().Err(err).Msg("unhandled error")
		WriteInternalServerErrorResponse(w, "Internal server error occurred")
	}
}
