package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/models"
	"bms-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatInputRequest チャット送信のリクエストボディ
type ChatInputRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query" binding:"required"`
	Role      string `json:"role"`
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Endpoint  string `json:"endpoint"`
}

// ChatHandler はセッション付きチャットとレポート出力のハンドラです。
type ChatHandler struct {
	chat     *services.ChatService
	sessions *services.SessionService
	exporter *services.ReportExporter
	logger   *zap.Logger
}

// NewChatHandler は新しいChatHandlerを生成します。
func NewChatHandler(chat *services.ChatService, sessions *services.SessionService, exporter *services.ReportExporter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		sessions: sessions,
		exporter: exporter,
		logger:   logging.OrNop(logger).Named("chat_handler"),
	}
}

// ChatInput はクエリを受け取り、アシスタントの応答をセッションに追加して返します。
// 同じセッションで応答待ちのリクエストがある場合は409を返します。
func (h *ChatHandler) ChatInput(c *gin.Context) {
	var req ChatInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query is required"})
		return
	}

	// セッションIDが指定されていない場合は新規生成
	if req.SessionID == "" {
		req.SessionID = h.sessions.NewSessionID()
	}

	if err := h.sessions.Begin(req.SessionID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	}
	defer h.sessions.End(req.SessionID)

	history := h.sessions.History(req.SessionID)
	h.sessions.Append(req.SessionID, models.ChatMessage{Role: models.MessageRoleUser, Content: req.Query})

	reply := h.chat.Respond(c.Request.Context(), services.ChatRequest{
		Query:   req.Query,
		History: history,
		Role:    models.ParseRole(req.Role),
		Provider: services.ProviderConfig{
			Provider: req.Provider,
			APIKey:   req.APIKey,
			Model:    req.Model,
			Endpoint: req.Endpoint,
		},
	})

	msg := h.sessions.Append(req.SessionID, models.ChatMessage{
		Role:       models.MessageRoleAssistant,
		Content:    reply.Text,
		IsOffline:  reply.Offline,
		Attachment: services.ReportAttachment(reply.Text),
	})

	h.logger.Info("チャット応答を返しました",
		zap.String("session_id", req.SessionID),
		zap.String("provider", reply.Provider),
		zap.Bool("offline", reply.Offline))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": req.SessionID,
		"message":    displayMessage(msg),
	})
}

// GetTranscript はセッションの履歴を返します。
func (h *ChatHandler) GetTranscript(c *gin.Context) {
	sessionID := c.Param("sessionID")
	transcript, err := h.sessions.Transcript(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	out := make([]models.ChatMessage, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, displayMessage(m))
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": out})
}

// ClearSession はセッションの履歴を消去します。
func (h *ChatHandler) ClearSession(c *gin.Context) {
	if err := h.sessions.Clear(c.Param("sessionID")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetReport はメッセージから抽出したレポートをJSONで返します。
func (h *ChatHandler) GetReport(c *gin.Context) {
	report, ok := h.extract(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

// DownloadReport はメッセージから抽出したレポートをExcelファイルで返します。
func (h *ChatHandler) DownloadReport(c *gin.Context) {
	report, ok := h.extract(c)
	if !ok {
		return
	}
	writeXLSX(c, h.logger, "BMS_AI_Report.xlsx", func(w io.Writer) error {
		return h.exporter.WriteReport(w, report)
	})
}

func (h *ChatHandler) extract(c *gin.Context) (models.ReportData, bool) {
	transcript, err := h.sessions.Transcript(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return models.ReportData{}, false
	}
	report, ok := services.ExtractReport(transcript, c.Param("messageID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("message %s not found", c.Param("messageID"))})
		return models.ReportData{}, false
	}
	return report, true
}

// displayMessage は表示用にレポートマーカーを除去したコピーを返します。
func displayMessage(m models.ChatMessage) models.ChatMessage {
	m.Content = services.StripSentinel(m.Content)
	return m
}
