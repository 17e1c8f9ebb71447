// Package huggingface はHugging Face形式の推論ルーターへのクライアントです。
// chat completions形式を優先し、404/405のときはテキスト生成形式へフォールバックします。
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const providerName = "huggingface"

// NoResponseText は上流が空の本文を返した場合の表示文言です。
const NoResponseText = "No response generated."

// Options ルータークライアントの設定
type Options struct {
	// BaseURLs は優先順に試行するルーターのベースURLです。
	BaseURLs     []string
	DefaultModel string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// Client 推論ルータークライアント
type Client struct {
	http         *resty.Client
	baseURLs     []string
	defaultModel string
	maxTokens    int
	temperature  float64
	logger       *zap.Logger
}

// NewClient は新しいルータークライアントを作成します。
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	bases := make([]string, 0, len(opts.BaseURLs))
	for _, b := range opts.BaseURLs {
		if b = strings.TrimSuffix(strings.TrimSpace(b), "/"); b != "" {
			bases = append(bases, b)
		}
	}

	return &Client{
		http:         resty.New().SetTimeout(opts.Timeout),
		baseURLs:     bases,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
		logger:       logging.OrNop(logger).Named(providerName),
	}
}

// Complete はベースURLを優先順に試行し、最初に成功した結果を返します。
// 401を受けた時点で中断し、すべて失敗した場合は最後のエラーを返します。
func (c *Client) Complete(ctx context.Context, token, model string, messages []Message) (Result, error) {
	return c.CompleteAt(ctx, "", token, model, messages)
}

// CompleteAt はCompleteと同じですが、endpointが空でなければ設定済みのベースURLの代わりにそれだけを使います。
func (c *Client) CompleteAt(ctx context.Context, endpoint, token, model string, messages []Message) (Result, error) {
	if token == "" {
		return Result{}, ErrMissingToken
	}
	if model == "" {
		model = c.defaultModel
	}
	bases := c.baseURLs
	if endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/"); endpoint != "" {
		bases = []string{endpoint}
	}
	if len(bases) == 0 {
		return Result{}, errors.New("no router base URL configured")
	}

	var lastErr error
	for _, base := range bases {
		res, err := c.completeAt(ctx, base, token, model, messages)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ErrInvalidCredentials) {
			c.logger.Warn("認証エラーのため試行を中断します", zap.String("base_url", base))
			return Result{}, err
		}
		c.logger.Warn("ルーター呼び出しに失敗しました。次のURLを試行します",
			zap.String("base_url", base), zap.Error(err))
		lastErr = err
	}
	return Result{}, fmt.Errorf("all router endpoints failed: %w", lastErr)
}

// completeAt は1つのベースURLに対してchat形式、必要ならテキスト生成形式で呼び出します。
func (c *Client) completeAt(ctx context.Context, base, token, model string, messages []Message) (Result, error) {
	chatURL := fmt.Sprintf("%s/models/%s/v1/chat/completions", base, model)
	chatBody := ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      false,
	}

	status, body, err := c.post(ctx, KindChat, chatURL, token, chatBody)
	if err != nil {
		return Result{}, err
	}
	if isSuccess(status) {
		return DetectShape(body)
	}

	statusErr := newStatusError(chatURL, status, body)
	if !statusErr.IsShapeMismatch() {
		return Result{}, statusErr
	}

	c.logger.Info("chat形式が利用できないためテキスト生成形式で再試行します",
		zap.String("model", model), zap.Int("status", status))

	genURL := fmt.Sprintf("%s/models/%s", base, model)
	temperature := c.temperature
	genBody := GenerationRequest{
		Inputs: FlattenPrompt(messages),
		Parameters: GenerationParameters{
			MaxNewTokens:   c.maxTokens,
			Temperature:    &temperature,
			ReturnFullText: false,
		},
	}

	status, body, err = c.post(ctx, KindGeneration, genURL, token, genBody)
	if err != nil {
		return Result{}, err
	}
	if isSuccess(status) {
		return DetectShape(body)
	}
	return Result{}, newStatusError(genURL, status, body)
}

func (c *Client) post(ctx context.Context, shape ResultKind, url, token string, payload interface{}) (int, []byte, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		metrics.RecordUpstreamCall(providerName, shape.String(), 0, time.Since(start))
		return 0, nil, fmt.Errorf("router request to %s failed: %w", url, err)
	}

	metrics.RecordUpstreamCall(providerName, shape.String(), resp.StatusCode(), time.Since(start))
	return resp.StatusCode(), resp.Body(), nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
