package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vidsum-dev/vidsum/internal/api/middleware"
	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/upload"
)

// UploadResponse mirrors model.UploadRecord's externally-visible fields.
type UploadResponse struct {
	FileID       string `json:"file_id"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	FileType     string `json:"file_type"`
	FileHash     string `json:"file_hash"`
}

func uploadResponseFromRecord(r *model.UploadRecord) UploadResponse {
	return UploadResponse{
		FileID:       r.FileID,
		OriginalName: r.OriginalName,
		Size:         r.SizeBytes,
		MimeType:     r.ContentType,
		FileType:     r.FileType,
		FileHash:     r.FileHash,
	}
}

// UploadHandler serves POST /api/uploads.
type UploadHandler struct {
	manager *upload.Manager
	logger  *slog.Logger
}

func NewUploadHandler(manager *upload.Manager, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{manager: manager, logger: logger}
}

// Create hands the multipart "file" field to the upload manager as a
// stream. r.FormFile parses the form first with net/http's default limit:
// up to 32 MB is held in memory and the rest spills to temporary files.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, r, http.StatusBadRequest, CodeBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	record, err := h.manager.SaveStream(r.Context(), file, header.Filename, contentType)
	if err != nil {
		h.handleUploadError(w, r, err)
		return
	}

	JSON(w, http.StatusCreated, uploadResponseFromRecord(record))
}

func (h *UploadHandler) handleUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upload.ErrUnsupportedType):
		Error(w, r, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, "unsupported file type")
	case errors.Is(err, upload.ErrTooLarge):
		Error(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "file exceeds the maximum allowed size")
	case errors.Is(err, upload.ErrTimedOut):
		Error(w, r, http.StatusRequestTimeout, CodeBadRequest, "upload timed out")
	case errors.Is(err, upload.ErrEmptyBody):
		Error(w, r, http.StatusBadRequest, CodeBadRequest, "upload body is empty")
	case errors.Is(err, io.ErrUnexpectedEOF):
		Error(w, r, http.StatusBadRequest, CodeBadRequest, "upload body was truncated")
	default:
		h.logger.Error("upload: unexpected error", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		InternalError(w, r)
	}
}
