package handlers

import (
	"errors"
	"net/http"

	"bms-chat-api/pkg/huggingface"
	"bms-chat-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProxyRequest はプロキシへのリクエストボディです。
type ProxyRequest struct {
	Messages []huggingface.Message `json:"messages"`
	Model    string                `json:"model"`
	Token    string                `json:"token"`
}

// ProxyHandler はブラウザからのチャットリクエストを推論ルーターへ中継します。
type ProxyHandler struct {
	client *huggingface.Client
	logger *zap.Logger
}

// NewProxyHandler は新しいProxyHandlerを生成します。
func NewProxyHandler(client *huggingface.Client, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{client: client, logger: logging.OrNop(logger).Named("proxy")}
}

// Handle はPOSTのみ受け付け、成功時は正規化した {choices:[{message:{content}}]} を返します。
func (h *ProxyHandler) Handle(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusOK)
		return
	case http.MethodPost:
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	var req ProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing Hugging Face token"})
		return
	}

	res, err := h.client.Complete(c.Request.Context(), req.Token, req.Model, req.Messages)
	if err != nil {
		if errors.Is(err, huggingface.ErrInvalidCredentials) {
			h.logger.Warn("トークンが拒否されました", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("上流の呼び出しに失敗しました", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("上流から応答を取得しました", zap.String("shape", res.Kind.String()))
	c.JSON(http.StatusOK, res.Normalize())
}
