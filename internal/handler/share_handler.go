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

type ShareHandler struct {
	shareService *service.ShareService
	verifier     *auth.Verifier
	log          *zap.SugaredLogger
}

func NewShareHandler(shareService *service.ShareService, verifier *auth.Verifier, log *zap.SugaredLogger) *ShareHandler {
	return &ShareHandler{
		shareService: shareService,
		verifier:     verifier,
		log:          log,
	}
}

type createShareRequest struct {
	DocumentID uuid.UUID `json:"documentId"`
}

func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warnw("[Create] failed to decode request body", "error", err)
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid request body"))
		return
	}
	if req.DocumentID == uuid.Nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "documentId is required"))
		return
	}

	share, err := h.shareService.Create(r.Context(), req.DocumentID, actor)
	if err != nil {
		h.log.Warnw("[Create] failed to create share", "document_id", req.DocumentID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, share)
}

type updateShareRequest struct {
	Published             *bool `json:"published,omitempty"`
	IncludeChildDocuments *bool `json:"includeChildDocuments,omitempty"`
}

func (h *ShareHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	shareID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid share id"))
		return
	}

	var req updateShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warnw("[Update] failed to decode request body", "error", err)
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid request body"))
		return
	}

	share, err := h.shareService.Update(r.Context(), service.UpdateShareInput{
		ShareID:               shareID,
		Published:             req.Published,
		IncludeChildDocuments: req.IncludeChildDocuments,
		Actor:                 actor,
	})
	if err != nil {
		h.log.Warnw("[Update] failed to update share", "share_id", shareID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, share)
}

func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, err := h.verifier.VerifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	shareID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, apperrors.Clone(apperrors.ErrValidation, "invalid share id"))
		return
	}

	if err := h.shareService.Revoke(r.Context(), shareID, actor); err != nil {
		h.log.Warnw("[Revoke] failed to revoke share", "share_id", shareID, "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *ShareHandler) GetByDocument(w http.ResponseWriter, r *http.Request) {
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

	share, err := h.shareService.GetByDocument(r.Context(), documentID, actor)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, share)
}
