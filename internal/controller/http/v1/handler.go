package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avoronkov/lab_ingest/internal/domain"
	"github.com/avoronkov/lab_ingest/internal/uploads"
)

// userIDHeader carries the authenticated user id set by the gateway in front
// of this service.
const userIDHeader = "X-User-ID"

type UploadManager interface {
	CreateSession(ctx context.Context, req uploads.CreateSessionRequest) (*uploads.CreateSessionResponse, error)
	RegisterUpload(ctx context.Context, req uploads.RegisterUploadRequest) (*domain.PanelUpload, error)
}

type UploadStore interface {
	UploadByIDForUser(ctx context.Context, id, userID string) (*domain.PanelUpload, error)
	UploadsForUser(ctx context.Context, userID string, limit, offset uint64) ([]*domain.PanelUpload, int, error)
	UpdateTags(ctx context.Context, id, userID string, planID *string, biomarkerTags []string) error
	MeasurementsByUpload(ctx context.Context, uploadID string) ([]*domain.Measurement, error)
}

type UploadsHandler struct {
	manager UploadManager
	store   UploadStore
}

func NewUploadsHandler(manager UploadManager, store UploadStore) *UploadsHandler {
	return &UploadsHandler{
		manager: manager,
		store:   store,
	}
}

type CreateSessionRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ByteSize    int64  `json:"byte_size"`
	SHA256      string `json:"sha256"`
}

type CreateSessionResponse struct {
	SessionID      string            `json:"session_id"`
	StorageKey     string            `json:"storage_key"`
	WriteURL       string            `json:"write_url"`
	Headers        map[string]string `json:"headers"`
	ExpiresAt      time.Time         `json:"expires_at"`
	MaxUploadBytes int64             `json:"max_upload_bytes"`
}

func (h *UploadsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedPayload, "invalid request body")
		return
	}

	session, err := h.manager.CreateSession(r.Context(), uploads.CreateSessionRequest{
		UserID:      userID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ByteSize:    req.ByteSize,
		SHA256:      req.SHA256,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:      session.SessionID,
		StorageKey:     session.StorageKey,
		WriteURL:       session.WriteURL,
		Headers:        session.Headers,
		ExpiresAt:      session.ExpiresAt,
		MaxUploadBytes: session.MaxUploadBytes,
	})
}

type RegisterUploadRequest struct {
	SessionID   string            `json:"session_id"`
	RawMetadata map[string]string `json:"raw_metadata"`
}

type UploadResponse struct {
	ID            string                    `json:"id"`
	Status        domain.UploadStatus       `json:"status"`
	ContentType   string                    `json:"content_type"`
	SHA256        string                    `json:"sha256"`
	ErrorCode     string                    `json:"error_code,omitempty"`
	ErrorMessage  string                    `json:"error_message,omitempty"`
	Normalized    *domain.NormalizedPayload `json:"normalized,omitempty"`
	BiomarkerTags []string                  `json:"biomarker_tags,omitempty"`
	PlanID        *string                   `json:"plan_id,omitempty"`
	ProcessedAt   *time.Time                `json:"processed_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	Measurements  []*domain.Measurement     `json:"measurements,omitempty"`
}

func uploadResponse(upload *domain.PanelUpload, measurements []*domain.Measurement) UploadResponse {
	return UploadResponse{
		ID:            upload.ID,
		Status:        upload.Status,
		ContentType:   upload.ContentType,
		SHA256:        upload.SHA256,
		ErrorCode:     upload.ErrorCode,
		ErrorMessage:  upload.ErrorMessage,
		Normalized:    upload.NormalizedPayload,
		BiomarkerTags: upload.BiomarkerTags,
		PlanID:        upload.PlanID,
		ProcessedAt:   upload.ProcessedAt,
		CreatedAt:     upload.CreatedAt,
		Measurements:  measurements,
	}
}

func (h *UploadsHandler) RegisterUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req RegisterUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedPayload, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedPayload, "session_id is required")
		return
	}

	upload, err := h.manager.RegisterUpload(r.Context(), uploads.RegisterUploadRequest{
		SessionID:   req.SessionID,
		UserID:      userID,
		RawMetadata: req.RawMetadata,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse(upload, nil))
}

func (h *UploadsHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	uploadID := chi.URLParam(r, "upload_id")

	upload, err := h.store.UploadByIDForUser(r.Context(), uploadID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var measurements []*domain.Measurement
	if upload.Status == domain.UploadNormalized {
		measurements, err = h.store.MeasurementsByUpload(r.Context(), upload.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, uploadResponse(upload, measurements))
}

type ListUploadsResponse struct {
	Uploads    []UploadResponse `json:"uploads"`
	Pagination Pagination       `json:"pagination"`
}

func (h *UploadsHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedPayload, err.Error())
		return
	}

	offset := (page - 1) * limit

	records, total, err := h.store.UploadsForUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ListUploadsResponse{
		Uploads: make([]UploadResponse, 0, len(records)),
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + int(limit) - 1) / int(limit),
		},
	}
	for _, upload := range records {
		resp.Uploads = append(resp.Uploads, uploadResponse(upload, nil))
	}

	writeJSON(w, http.StatusOK, resp)
}

type UpdateTagsRequest struct {
	PlanID        *string  `json:"plan_id"`
	BiomarkerTags []string `json:"biomarker_tags"`
}

func (h *UploadsHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	uploadID := chi.URLParam(r, "upload_id")

	var req UpdateTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedPayload, "invalid request body")
		return
	}
	if req.PlanID == nil && req.BiomarkerTags == nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedPayload, "at least one of plan_id or biomarker_tags is required")
		return
	}

	if err := h.store.UpdateTags(r.Context(), uploadID, userID, req.PlanID, req.BiomarkerTags); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UploadsHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing user identity")
		return "", false
	}
	return userID, true
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, message string) {
	writeJSON(w, status, errorResponse{Code: string(code), Message: message})
}

// writeDomainError maps error codes to HTTP statuses. Unknown failures leak
// no detail past the code and a generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, domain.CodeInternal, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch de.Code {
	case domain.CodeInvalidFilename,
		domain.CodeInvalidContentType,
		domain.CodeInvalidByteSize,
		domain.CodeInvalidHash,
		domain.CodeMalformedPayload:
		status = http.StatusBadRequest
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeSessionConsumed:
		status = http.StatusConflict
	case domain.CodeSessionExpired:
		status = http.StatusGone
	case domain.CodeStorageProvider:
		status = http.StatusBadGateway
	}

	writeError(w, status, de.Code, de.Message)
}
