package documents

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"docvault/internal/shared/server/middleware"
	"docvault/internal/shared/server/respond"
)

const (
	defaultMaxUploadBytes = 10 << 20 // 10MB
	multipartOverhead     = 1 << 20
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.DELETE("/documents/:id", h.delete)
}

func (h *Handler) upload(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing principal", nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			h.tooLarge(c)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fileHeader.Size > h.MaxUploadBytes {
		h.tooLarge(c)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.MaxUploadBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	if int64(len(data)) > h.MaxUploadBytes {
		h.tooLarge(c)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	doc, err := h.Svc.Ingest(ctx, principal, IngestInput{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Set(middleware.DocumentIDKey, doc.ID)
	c.Set(middleware.StatusTransitionKey, "none->"+string(doc.Status))
	respond.Created(c, toResponse(doc, true))
}

func (h *Handler) tooLarge(c *gin.Context) {
	respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds upload limit", gin.H{
		"maxBytes": h.MaxUploadBytes,
	})
}

func (h *Handler) list(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing principal", nil)
		return
	}

	in := ListInput{
		Page:    queryInt(c, "page"),
		Limit:   queryInt(c, "limit"),
		Search:  c.Query("q"),
		Status:  c.Query("status"),
		OwnerID: c.Query("owner"),
	}
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	res, err := h.Svc.List(ctx, principal, in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toListResponse(res))
}

func (h *Handler) get(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing principal", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	c.Set(middleware.DocumentIDKey, id)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	if wantsFile(c.Query("file")) {
		url, err := h.Svc.Download(ctx, principal, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, url)
		return
	}

	doc, err := h.Svc.Get(ctx, principal, id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toResponse(doc, true))
}

func (h *Handler) delete(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing principal", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	c.Set(middleware.DocumentIDKey, id)
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))

	if err := h.Svc.Delete(ctx, principal, id); err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"message": "Document deleted"})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "Forbidden", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Not Found", nil)
	case errors.Is(err, ErrUnsupportedMediaType):
		respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_media_type", "Only pdf, doc and docx files are allowed", nil)
	case errors.Is(err, ErrStorageWriteFailed):
		respond.Error(c, http.StatusInternalServerError, "storage_write_failed", "failed to store file", nil)
	case errors.Is(err, ErrRecordInsertFailed):
		respond.Error(c, http.StatusInternalServerError, "record_insert_failed", "failed to record document", nil)
	case errors.Is(err, ErrStorageDeleteFailed):
		respond.Error(c, http.StatusInternalServerError, "storage_delete_failed", "failed to delete file", nil)
	case errors.Is(err, ErrSignedURLFailed):
		respond.Error(c, http.StatusInternalServerError, "signed_url_failed", "failed to issue download link", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Server Error", nil)
	}
}

func queryInt(c *gin.Context, key string) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return parsed
}

func wantsFile(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

