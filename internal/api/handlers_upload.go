// handlers_upload.go - Image batch submission handler
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/snaptext/backend/internal/upload"
)

// UploadField is the multipart form field carrying the images.
const UploadField = "images"

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	intake        Submitter
	publicBaseURL string
	logger        *slog.Logger
}

// NewUploadHandler creates a new upload handler instance. publicBaseURL is
// the prefix of the polling URL returned to clients, e.g. "localhost:8123".
func NewUploadHandler(intake Submitter, publicBaseURL string, logger *slog.Logger) UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandlerImpl{
		intake:        intake,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// HandleUpload accepts a multipart batch and returns the polling URL of the
// created job as a JSON string.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	files, err := h.readFiles(c)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		h.logger.Error("reading upload failed", "error", err)
		return c.JSON(http.StatusInternalServerError, msgStorageError)
	}

	id, err := h.intake.Submit(c.Request().Context(), files)
	if err != nil {
		status, msg := uploadErrorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("submission failed", "files", len(files), "error", err)
		} else {
			h.logger.Debug("submission rejected", "files", len(files), "error", err)
		}
		return c.JSON(status, msg)
	}

	return c.JSON(http.StatusOK, h.pollURL(id))
}

func (h *UploadHandlerImpl) pollURL(id string) string {
	return fmt.Sprintf("%s/jobs/%s", h.publicBaseURL, id)
}

// readFiles loads every part of the images field. A request that is not
// multipart at all is treated as carrying no files.
func (h *UploadHandlerImpl) readFiles(c echo.Context) ([]upload.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, nil
		}
		return nil, NewBadRequestError("invalid multipart body", err)
	}

	headers := form.File[UploadField]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		files = append(files, upload.File{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get(echo.HeaderContentType),
			Data:     data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}
