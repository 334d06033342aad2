package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xpmail/formhub/internal/api/response"
)

const multipartMemory = 8 << 20

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// ImageUploadResponse is returned by POST /v1/images.
type ImageUploadResponse struct {
	URL string `json:"url"`
}

// ImagesHandler accepts background image uploads for forms.
type ImagesHandler struct {
	uploader ImageUploader
}

// NewImagesHandler creates an images handler. A nil uploader makes the endpoint answer 503.
func NewImagesHandler(uploader ImageUploader) *ImagesHandler {
	return &ImagesHandler{uploader: uploader}
}

// Upload handles POST /v1/images (multipart field "image").
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		response.RespondServiceUnavailable(w, "Image uploads are not configured")

		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondRequestEntityTooLarge(w, "image exceeds maximum allowed size")

			return
		}

		response.RespondBadRequest(w, "Expected a multipart form with an image field")

		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		response.RespondBadRequest(w, "image field is required")

		return
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.WarnContext(r.Context(), "Failed to close uploaded file", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		response.RespondBadRequest(w, "Failed to read image")

		return
	}

	if len(data) == 0 {
		response.RespondBadRequest(w, "image is empty")

		return
	}

	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		response.RespondBadRequest(w, "file is not an image")

		return
	}

	url, err := h.uploader.Upload(r.Context(), header.Filename, data)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to upload image", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondError(w, http.StatusBadGateway, "Bad Gateway", "Image host rejected the upload")

		return
	}

	response.RespondJSON(w, http.StatusCreated, ImageUploadResponse{URL: url})
}
