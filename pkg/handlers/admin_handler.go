package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	config "bms-chat-api/configs"
	"bms-chat-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	adminUsername     string
	adminPassword     string
	adminPasswordHash []byte
	// atomic.Boolでスレッドセーフに読み書きする
	maintenance atomic.Bool
	logger      *zap.Logger
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminUsername:     cfg.AdminUsername,
		adminPassword:     cfg.AdminPassword,
		adminPasswordHash: []byte(cfg.AdminPasswordHash),
		logger:            logging.OrNop(logger).Named("admin"),
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(true)
	h.logger.Warn("メンテナンスモードを開始しました")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(false)
	h.logger.Info("メンテナンスモードを停止しました")
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isMaintenanceMode": h.maintenance.Load()})
}

// HealthCheck は外部のヘルスチェッカーからのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MaintenanceMiddleware はメンテナンス中に管理系以外のAPIを503で拒否します。
func (h *AdminHandler) MaintenanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.maintenance.Load() && !strings.HasPrefix(c.Request.URL.Path, "/api/v1/admin") {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Server is in maintenance mode"})
			return
		}
		c.Next()
	}
}

// authorize は資格情報を検証します。
func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.adminUsername)) == 1
	if !userOK || !h.checkPassword(input.Password) {
		h.logger.Warn("管理者認証に失敗しました", zap.String("username", input.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}

// checkPassword はハッシュがあればbcryptで、なければ平文と比較します。どちらも未設定なら拒否します。
func (h *AdminHandler) checkPassword(password string) bool {
	if len(h.adminPasswordHash) > 0 {
		return bcrypt.CompareHashAndPassword(h.adminPasswordHash, []byte(password)) == nil
	}
	if h.adminPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.adminPassword)) == 1
}
