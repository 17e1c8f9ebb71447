package huggingface

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMissingToken はトークン未設定です。ネットワーク呼び出しは行いません。
	ErrMissingToken = errors.New("missing Hugging Face token")
	// ErrInvalidCredentials は上流が401を返したことを示します。
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// StatusError は上流が2xx以外を返したことを示します。
type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusUnauthorized {
		return fmt.Sprintf("HF API Error (401): invalid credentials, check your Hugging Face token: %s", e.Message)
	}
	return fmt.Sprintf("HF API Error (%d): %s", e.StatusCode, e.Message)
}

// Unwrap により errors.Is(err, ErrInvalidCredentials) で401を判定できます。
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrInvalidCredentials
	}
	return nil
}

// IsShapeMismatch はエンドポイントが呼び出し形式を受け付けなかったかを返します。
func (e *StatusError) IsShapeMismatch() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusMethodNotAllowed
}

func newStatusError(url string, status int, body []byte) *StatusError {
	return &StatusError{URL: url, StatusCode: status, Message: errorMessage(body)}
}

// errorMessage は {"error": "..."} / {"error": {"message": "..."}} / テキストのいずれからもメッセージを取り出します。
func errorMessage(body []byte) string {
	var obj struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && len(obj.Error) > 0 {
		var s string
		if json.Unmarshal(obj.Error, &s) == nil {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(obj.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		return string(obj.Error)
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}
