package server

import (
	"errors"
	"net/http"

	"github.com/benpsk/kalakaari-shop/internal/upload"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes = 10 << 20
	multipartOverhead     = 1 << 20
)

// uploadImage backs the image upload widget: one multipart "file" in, the
// stored object's public URL out.
func (h handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeErrorJSON(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	maxBytes := h.maxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}

	limitRequestBody(w, r, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if isRequestBodyTooLarge(err) {
			writeErrorJSON(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeErrorJSON(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()
	if header.Size > maxBytes {
		writeErrorJSON(w, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}

	fileURL, err := h.uploader.Upload(r.Context(), header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, upload.ErrUnsupportedType) {
			writeErrorJSON(w, http.StatusUnsupportedMediaType, "Only image files can be uploaded")
			return
		}
		h.log.Error("upload image", zap.String("filename", header.Filename), zap.Error(err))
		writeErrorJSON(w, http.StatusInternalServerError, "Upload failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_url": fileURL})
}
