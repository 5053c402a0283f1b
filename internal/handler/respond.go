package handler

import (
	"encoding/json"
	"net/http"

	apperrors "docspace/pkg/errors"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError переводит типизированную ошибку сервиса в HTTP-статус.
// Неизвестные ошибки наружу не раскрываются
func respondError(w http.ResponseWriter, err error) {
	appErr := apperrors.FromError(err)
	respondJSON(w, appErr.Status, errorResponse{
		Error:   appErr.Code,
		Message: appErr.Message,
	})
}
