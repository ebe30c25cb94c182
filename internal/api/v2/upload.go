package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/extract"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// ExtractResponse is returned by a successful upload.
type ExtractResponse struct {
	Success  bool   `json:"success"`
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

// ExtractUpload reads the multipart "file" field and returns its text.
func (c *Controller) ExtractUpload(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return c.HandleError(ctx, err)
		}
		// a part sent with an empty filename is parsed as a plain form value
		if form := ctx.Request().MultipartForm; form != nil && len(form.Value["file"]) > 0 {
			return respondError(ctx, http.StatusBadRequest, "No file selected")
		}
		return respondError(ctx, http.StatusBadRequest, "No file uploaded")
	}
	if fh.Filename == "" {
		return respondError(ctx, http.StatusBadRequest, "No file selected")
	}

	ext := extract.Extension(fh.Filename)
	if !extract.Allowed(fh.Filename) {
		c.httpMetrics.RecordUpload("other", extract.ErrUnsupportedType)
		return respondError(ctx, http.StatusBadRequest, extract.ErrUnsupportedType.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return c.HandleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("operation", "open_upload").
			Build())
	}
	defer func() { _ = f.Close() }()

	filename := extract.SecureFilename(fh.Filename)
	text, err := c.extractor.Extract(ctx.Request().Context(), fh.Filename, f)
	c.httpMetrics.RecordUpload(ext, err)
	if err != nil {
		c.logger.WithContext(ctx.Request().Context()).Info("text extraction failed",
			logger.String("filename", filename),
			logger.Error(err))
		return c.HandleError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, ExtractResponse{
		Success:  true,
		Text:     text,
		Filename: filename,
	})
}
