package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/apperror"
	"github.com/example/wardrobe-scan/internal/auth"
	"github.com/example/wardrobe-scan/internal/imaging"
	"github.com/example/wardrobe-scan/internal/repository"
	"github.com/example/wardrobe-scan/internal/usecase"
)

// MaxUploadSize bounds the photo part of an upload.
const MaxUploadSize = imaging.MaxUploadSize

// multipartOverhead leaves room for boundaries and part headers on top of the
// photo itself.
const multipartOverhead = 64 << 10

// WardrobeService is the use case surface exposed over HTTP.
type WardrobeService interface {
	Submit(ctx context.Context, ownerID string, imageBytes []byte) (*usecase.SubmitResult, error)
	List(ctx context.Context, ownerID string, filter repository.ItemFilter) ([]repository.WardrobeItem, error)
	Summary(ctx context.Context, ownerID string) (*usecase.WardrobeSummary, error)
}

type uploadResponse struct {
	Message string                    `json:"message"`
	Items   []repository.WardrobeItem `json:"items"`
}

// NewEngine builds the gin engine with recovery and request logging. Client
// addresses come from the TCP peer unless it is one of trustedProxies.
func NewEngine(trustedProxies []string, logger *zap.Logger) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, err
	}
	r.MaxMultipartMemory = MaxUploadSize
	r.Use(Recovery(logger), RequestLogger(logger))
	return r, nil
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Every wardrobe
// route runs rateLimit, then authMiddleware, before its handler.
func RegisterRoutes(router *gin.Engine, svc WardrobeService, rateLimit, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	h := &handler{svc: svc, logger: logger.Named("handlers")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", rateLimit, authMiddleware)
	api.POST("/upload-photo", h.uploadPhoto)
	api.GET("/wardrobe", h.listWardrobe)
	api.GET("/wardrobe/summary", h.wardrobeSummary)
}

type handler struct {
	svc    WardrobeService
	logger *zap.Logger
}

func (h *handler) uploadPhoto(c *gin.Context) {
	ownerID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		respondError(c, apperror.New(apperror.KindAuth, "handlers.upload_photo", "", auth.ErrNoUser))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)
	file, err := c.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperror.New(apperror.KindValidation, "handlers.upload_photo", "", imaging.ErrTooLarge))
			return
		}
		respondError(c, apperror.Validation("handlers.upload_photo", "photo file is required"))
		return
	}

	if file.Size > MaxUploadSize {
		respondError(c, apperror.New(apperror.KindValidation, "handlers.upload_photo", "", imaging.ErrTooLarge))
		return
	}
	if !declaredTypeAllowed(file.Header.Get("Content-Type")) {
		respondError(c, apperror.New(apperror.KindValidation, "handlers.upload_photo", "", imaging.ErrUnsupportedType))
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, apperror.Validation("handlers.upload_photo", "unable to open photo"))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		respondError(c, apperror.New(apperror.KindUnexpected, "handlers.upload_photo", "", errors.New("failed to read photo")))
		return
	}

	result, err := h.svc.Submit(c.Request.Context(), ownerID, data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadResponse{Message: result.Message, Items: result.Items})
}

func (h *handler) listWardrobe(c *gin.Context) {
	ownerID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		respondError(c, apperror.New(apperror.KindAuth, "handlers.list_wardrobe", "", auth.ErrNoUser))
		return
	}

	items, err := h.svc.List(c.Request.Context(), ownerID, repository.ItemFilter{
		Category: c.Query("type"),
		Color:    c.Query("color"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *handler) wardrobeSummary(c *gin.Context) {
	ownerID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		respondError(c, apperror.New(apperror.KindAuth, "handlers.wardrobe_summary", "", auth.ErrNoUser))
		return
	}

	summary, err := h.svc.Summary(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// declaredTypeAllowed accepts JPEG/PNG part types. Parts without a specific
// type are left to content sniffing in the use case.
func declaredTypeAllowed(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mediaType == "application/octet-stream" {
		return true
	}
	return imaging.IsAllowedType(mediaType)
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(apperror.KindOf(err)), apperror.ResponseFor(err))
}
