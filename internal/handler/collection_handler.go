package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docspace/internal/auth"
	"docspace/internal/service"
	apperrors "docspace/pkg/errors"
)

type CollectionHandler struct {
	documentService *service.DocumentService
	verifier        *auth.Verifier
	log             *zap.SugaredLogger
}

func NewCollectionHandler(documentService *service.DocumentService, verifier *auth.Verifier, log *zap.SugaredLogger) *CollectionHandler {
	return &CollectionHandler{
		documentService: documentService,
		verifier:        verifier,
		log:             log,
	}
}

// Structure возвращает дерево живых документов коллекции
func (h *CollectionHandler) Structure(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	collectionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid collection id"))
		return
	}

	nodes, err := h.documentService.Structure(r.Context(), collectionID, actor)
	if err != nil {
		h.log.Warnw("[Structure] failed to load collection structure", "collection_id", collectionID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"documents": nodes})
}

// RepairIndex пересобирает ключи сортировки коллекции. Обслуживающая
// операция, права проверяет сервис
func (h *CollectionHandler) RepairIndex(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	collectionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid collection id"))
		return
	}

	changes, err := h.documentService.RepairIndex(r.Context(), collectionID, actor)
	if err != nil {
		h.log.Warnw("[RepairIndex] failed to repair collection index", "collection_id", collectionID, "error", err)
		respondError(w, err)
		return
	}

	keys := make(map[string]string, len(changes))
	for id, key := range changes {
		keys[id.String()] = key
	}
	respondJSON(w, http.StatusOK, map[string]any{"changed": keys})
}
