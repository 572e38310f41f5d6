package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"storeadmin/internal/catalog"
	"storeadmin/internal/common"
	"storeadmin/internal/models"
	"storeadmin/internal/productform"
	"storeadmin/internal/upload"

	"github.com/labstack/echo/v4"
)

const sseKeepAlive = 15 * time.Second

var errFileTooLarge = errors.New("file too large")

// FormHandlers drives server-side product forms
type FormHandlers struct {
	forms       *productform.Manager
	maxFileSize int64
}

func NewFormHandlers(forms *productform.Manager, maxFileSize int64) *FormHandlers {
	return &FormHandlers{forms: forms, maxFileSize: maxFileSize}
}

type OpenFormRequest struct {
	ProductID string `json:"product_id"`
}

// UpdateFormRequest is a partial update; absent fields are left alone.
// Price is accepted as a JSON number or string.
type UpdateFormRequest struct {
	Title       *string           `json:"title" validate:"omitempty,max=500"`
	Description *string           `json:"description"`
	Price       json.RawMessage   `json:"price"`
	Category    *string           `json:"category"`
	Properties  map[string]string `json:"properties"`
}

type PropertyValueRequest struct {
	Value string `json:"value"`
}

type ReorderImagesRequest struct {
	Images []string `json:"images" validate:"dive,required"`
}

type UploadAcceptedResponse struct {
	BatchID string `json:"batch_id"`
	Files   int    `json:"files"`
}

// OpenForm starts a session for a new product, or for product_id when given
func (h *FormHandlers) OpenForm(c echo.Context) error {
	var req OpenFormRequest
	if c.Request().ContentLength != 0 {
		if ok, err := bindAndValidate(c, &req); !ok {
			return err
		}
	}

	form, err := h.forms.Open(c.Request().Context(), strings.TrimSpace(req.ProductID))
	if err != nil {
		return sendCatalogError(c, "Failed to open form", err)
	}
	return c.JSON(http.StatusCreated, form.State())
}

func (h *FormHandlers) GetForm(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, form.State())
}

// UpdateForm applies field changes in a fixed order: category first, then the rest
func (h *FormHandlers) UpdateForm(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	var req UpdateFormRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	if len(req.Price) > 0 {
		if err := form.SetPrice(rawPrice(req.Price)); err != nil {
			return common.SendValidationError(c, "price", err.Error())
		}
	}
	if req.Category != nil {
		form.SetCategory(*req.Category)
	}
	if req.Title != nil {
		form.SetTitle(*req.Title)
	}
	if req.Description != nil {
		form.SetDescription(*req.Description)
	}
	for name, value := range req.Properties {
		form.SetProperty(name, value)
	}

	return c.JSON(http.StatusOK, form.State())
}

func (h *FormHandlers) SetProperty(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return common.SendValidationError(c, "name", "is required")
	}

	var req PropertyValueRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	form.SetProperty(name, req.Value)
	return c.JSON(http.StatusOK, form.State())
}

// UploadImages accepts one or more "file" parts and answers before the uploads finish
func (h *FormHandlers) UploadImages(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	var headers []*multipart.FileHeader
	if mf, err := c.MultipartForm(); err == nil {
		headers = mf.File["file"]
	} else if !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingBoundary) {
		return common.SendClientError(c, "Invalid multipart form")
	}

	files := make([]models.UploadFile, 0, len(headers))
	for _, fh := range headers {
		file, err := h.readFile(fh)
		if errors.Is(err, errFileTooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, common.CreateErrorResponse("FILE_TOO_LARGE", err.Error(), nil))
		}
		if err != nil {
			c.Logger().Errorf("read upload %s: %v", fh.Filename, err)
			return common.SendServerError(c, "Failed to read uploaded file "+fh.Filename)
		}
		files = append(files, file)
	}

	// uploads outlive this request; keep the credential, drop the cancellation
	batch, err := form.UploadImages(context.WithoutCancel(c.Request().Context()), files)
	if errors.Is(err, upload.ErrNoFiles) {
		return common.SendValidationError(c, "file", "at least one file is required")
	}
	if err != nil {
		return common.SendServerError(c, "Failed to start upload")
	}

	return c.JSON(http.StatusAccepted, UploadAcceptedResponse{BatchID: batch.ID.String(), Files: batch.Files})
}

func (h *FormHandlers) readFile(fh *multipart.FileHeader) (models.UploadFile, error) {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return models.UploadFile{}, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, fh.Filename, h.maxFileSize)
	}

	src, err := fh.Open()
	if err != nil {
		return models.UploadFile{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	limit := h.maxFileSize
	if limit <= 0 {
		limit = fh.Size
	}
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return models.UploadFile{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if int64(len(data)) > limit {
		return models.UploadFile{}, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, fh.Filename, limit)
	}

	return models.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	}, nil
}

// ReorderImages replaces the image order
func (h *FormHandlers) ReorderImages(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	var req ReorderImagesRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	if req.Images == nil {
		req.Images = []string{}
	}
	form.ReorderImages(req.Images)
	return c.JSON(http.StatusOK, form.State())
}

// SaveForm creates or updates the product and closes the session on success
func (h *FormHandlers) SaveForm(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	result, err := form.Save(c.Request().Context())
	if err != nil {
		var saveErr *productform.SaveError
		var apiErr *catalog.APIError
		switch {
		case errors.As(err, &apiErr):
			return c.JSON(http.StatusBadGateway, common.CreateErrorResponse("UPSTREAM_ERROR", err.Error(), map[string]string{
				"status": fmt.Sprint(apiErr.Status),
			}))
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return c.JSON(http.StatusGatewayTimeout, common.CreateErrorResponse("TIMEOUT", err.Error(), nil))
		case errors.As(err, &saveErr):
			return common.SendUpstreamError(c, err.Error())
		default:
			return common.SendServerError(c, "Failed to save product")
		}
	}

	h.forms.Discard(form.ID())
	return c.JSON(http.StatusOK, result)
}

func (h *FormHandlers) DiscardForm(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if !h.forms.Discard(id) {
		return common.SendNotFoundError(c, "Form")
	}
	return c.NoContent(http.StatusNoContent)
}

// StreamEvents pushes form changes as server-sent events until the client goes away
func (h *FormHandlers) StreamEvents(c echo.Context) error {
	form, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	ch, cancel := form.Subscribe()
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "state", form.State()); err != nil {
		return nil
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(w, string(e.Kind), e); err != nil {
				return nil
			}
		}
	}
}

func writeSSE(w *echo.Response, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// lookup resolves the :id session. When ok is false the error response has been written.
func (h *FormHandlers) lookup(c echo.Context) (*productform.Controller, bool, error) {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return nil, false, common.SendValidationError(c, "id", err.Error())
	}
	form, err := h.forms.Get(id)
	if err != nil {
		return nil, false, common.SendNotFoundError(c, "Form")
	}
	return form, true, nil
}

func rawPrice(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		return quoted
	}
	return s
}
