package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeXLSX はブックを一度バッファに書き出してから添付ファイルとして返します。
// 書き出しに失敗した場合はヘッダー送信前に500を返せます。
func writeXLSX(c *gin.Context, logger *zap.Logger, filename string, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		logger.Error("Excelファイルの生成に失敗しました", zap.String("file", filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate spreadsheet"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// queryInt はクエリパラメータを整数として読み取ります。不正な値はdefaultValueになります。
func queryInt(c *gin.Context, key string, defaultValue int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
