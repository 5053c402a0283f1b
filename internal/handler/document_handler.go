package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docspace/internal/auth"
	"docspace/internal/service"
	apperrors "docspace/pkg/errors"
)

type DocumentHandler struct {
	documentService *service.DocumentService
	accessService   *service.AccessService
	verifier        *auth.Verifier
	log             *zap.SugaredLogger
}

func NewDocumentHandler(
	documentService *service.DocumentService,
	accessService *service.AccessService,
	verifier *auth.Verifier,
	log *zap.SugaredLogger,
) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		accessService:   accessService,
		verifier:        verifier,
		log:             log,
	}
}

type createDocumentRequest struct {
	Title            string     `json:"title"`
	CollectionID     *uuid.UUID `json:"collectionId,omitempty"`
	ParentDocumentID *uuid.UUID `json:"parentDocumentId,omitempty"`
	Publish          bool       `json:"publish"`
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warnw("[Create] failed to decode request body", "error", err)
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid request body"))
		return
	}

	doc, err := h.documentService.Create(r.Context(), service.CreateDocumentInput{
		Title:            req.Title,
		CollectionID:     req.CollectionID,
		ParentDocumentID: req.ParentDocumentID,
		Publish:          req.Publish,
		Actor:            actor,
	})
	if err != nil {
		h.log.Warnw("[Create] failed to create document", "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, doc)
}

type resolveRequest struct {
	DocumentID *uuid.UUID `json:"documentId,omitempty"`
	ShareID    *uuid.UUID `json:"shareId,omitempty"`
}

// Resolve — единая точка разрешения доступа: по документу, по внешней
// ссылке или по их комбинации. Аутентификация не обязательна,
// анонимные вызовы проходят по пути ссылки
func (h *DocumentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.OptionalActor(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warnw("[Resolve] failed to decode request body", "error", err)
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid request body"))
		return
	}

	result, err := h.accessService.Resolve(r.Context(), service.ResolveInput{
		DocumentID: req.DocumentID,
		ShareID:    req.ShareID,
		Actor:      actor,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type moveDocumentRequest struct {
	CollectionID     uuid.UUID  `json:"collectionId"`
	ParentDocumentID *uuid.UUID `json:"parentDocumentId,omitempty"`
	Index            *int       `json:"index,omitempty"`
}

func (h *DocumentHandler) Move(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	documentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid document id"))
		return
	}

	var req moveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warnw("[Move] failed to decode request body", "error", err)
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid request body"))
		return
	}

	result, err := h.documentService.Move(r.Context(), service.MoveInput{
		DocumentID:      documentID,
		NewCollectionID: req.CollectionID,
		NewParentID:     req.ParentDocumentID,
		Index:           req.Index,
		Actor:           actor,
	})
	if err != nil {
		h.log.Warnw("[Move] failed to move document", "document_id", documentID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *DocumentHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	documentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid document id"))
		return
	}

	ids, err := h.documentService.Archive(r.Context(), documentID, actor)
	if err != nil {
		h.log.Warnw("[Archive] failed to archive document", "document_id", documentID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"archivedIds": ids})
}

func (h *DocumentHandler) Restore(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	documentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid document id"))
		return
	}

	doc, err := h.documentService.Restore(r.Context(), documentID, actor)
	if err != nil {
		h.log.Warnw("[Restore] failed to restore document", "document_id", documentID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	documentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid document id"))
		return
	}

	doc, err := h.documentService.Unpublish(r.Context(), documentID, actor)
	if err != nil {
		h.log.Warnw("[Unpublish] failed to unpublish document", "document_id", documentID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}
