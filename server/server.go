package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaos-io/rembg-cli/logging"
	"github.com/chaos-io/rembg-cli/rembg"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	maxUploadBytes = 32 << 20
)

// BytesRemover 服务端复用命令行的抠图流程
type BytesRemover interface {
	RemoveBytes(ctx context.Context, data []byte, model string) ([]byte, error)
}

type Handler struct {
	remover      BytesRemover
	defaultModel string
	logger       *zap.Logger
}

func NewHandler(remover BytesRemover, defaultModel string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultModel == "" {
		defaultModel = rembg.DefaultModel
	}
	return &Handler{remover: remover, defaultModel: defaultModel, logger: logger}
}

// NewRouter 注册路由
//
//	POST /api/remove  multipart: file, model(可选) -> image/png
//	GET  /api/models  已知模型列表
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(h.logger))

	api := r.Group("/api")
	api.POST("/remove", h.Remove)
	api.GET("/models", h.Models)
	return r
}

func (h *Handler) Remove(c *gin.Context) {
	logger := logging.WithOperation(h.logger, "remove", c.GetString(requestIDKey))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open uploaded file"})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	model := strings.TrimSpace(c.PostForm("model"))
	if model == "" {
		model = h.defaultModel
	}

	out, err := h.remover.RemoveBytes(c.Request.Context(), data, model)
	if err != nil {
		logger.Warn("remove background failed",
			zap.String("filename", fileHeader.Filename),
			zap.String("model", model),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	logger.Info("background removed",
		zap.String("filename", fileHeader.Filename),
		zap.String("model", model),
		zap.Int("bytes", len(out)),
	)
	c.Data(http.StatusOK, "image/png", out)
}

func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":     h.defaultModel,
		"models":      rembg.Models,
		"recommended": rembg.Recommended,
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("request",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
