// Package groq はOpenAI互換のchat completions API（Groq等）へのクライアントです。
// APIキーは呼び出し側から渡され、グローバルな設定は参照しません。
package groq

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/metrics"
	"bms-chat-api/pkg/models"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"
)

const providerName = "groq"

// DefaultBaseURL Groqのエンドポイント
const DefaultBaseURL = "https://api.groq.com/openai/v1/"

// DefaultModel ユーザーがモデルを選択していない場合に使うモデル
const DefaultModel = "llama-3.3-70b-versatile"

// NoResponseText は応答候補が空だった場合の表示文言です。
const NoResponseText = "No response generated."

var (
	ErrMissingAPIKey      = errors.New("missing Groq API key, please add it in Settings")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Client 1つのAPIキーに紐づくクライアント
type Client struct {
	api    openai.Client
	logger *zap.Logger
}

// ChatOptions 生成パラメータ
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	TopP        float64
}

// DefaultChatOptions は元のダッシュボードと同じパラメータです。
func DefaultChatOptions() ChatOptions {
	return ChatOptions{Model: DefaultModel, Temperature: 0.5, MaxTokens: 1024, TopP: 1}
}

// Chat はメッセージ列を送信してアシスタントの本文を返します。
func (c *Client) Chat(ctx context.Context, messages []models.HistoryMessage, opts ChatOptions) (string, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(opts.Model),
		Messages:    toParams(messages),
		Temperature: openai.Float(opts.Temperature),
		MaxTokens:   openai.Int(opts.MaxTokens),
		TopP:        openai.Float(opts.TopP),
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			metrics.RecordUpstreamCall(providerName, "chat", apiErr.StatusCode, time.Since(start))
			if apiErr.StatusCode == http.StatusUnauthorized {
				return "", fmt.Errorf("groq API error (401): %w", ErrInvalidCredentials)
			}
			return "", fmt.Errorf("groq API error (%d): %w", apiErr.StatusCode, err)
		}
		metrics.RecordUpstreamCall(providerName, "chat", 0, time.Since(start))
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	metrics.RecordUpstreamCall(providerName, "chat", http.StatusOK, time.Since(start))

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("応答候補が空でした", zap.String("model", opts.Model))
		return NoResponseText, nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toParams(messages []models.HistoryMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch models.MessageRole(m.Role) {
		case models.MessageRoleSystem:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		case models.MessageRoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		default:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		}
	}
	return out
}

// maxCachedClients はキャッシュするクライアント数の上限です。超えた分は最も古く使われたものから破棄します。
const maxCachedClients = 32

// Factory はAPIキーごとにクライアントを生成し、キャッシュします。
type Factory struct {
	baseURL  string
	timeout  time.Duration
	capacity int
	logger   *zap.Logger

	mu      sync.Mutex
	order   *list.List // 先頭が最近使われたもの
	clients map[string]*list.Element
}

type cacheEntry struct {
	key    string
	client *Client
}

// NewFactory は新しいFactoryを作成します。baseURLが空ならGroqを使います。
func NewFactory(baseURL string, timeout time.Duration, logger *zap.Logger) *Factory {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Factory{
		baseURL:  baseURL,
		timeout:  timeout,
		capacity: maxCachedClients,
		logger:   logging.OrNop(logger).Named(providerName),
		order:    list.New(),
		clients:  make(map[string]*list.Element),
	}
}

// BaseURL は既定のベースURLです。
func (f *Factory) BaseURL() string { return f.baseURL }

// Client はAPIキーに対応するクライアントを返します。endpointが空でなければベースURLを上書きします。
func (f *Factory) Client(apiKey, endpoint string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	base := f.baseURL
	if endpoint != "" {
		base = endpoint
	}
	key := base + "\x00" + apiKey

	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.clients[key]; ok {
		f.order.MoveToFront(el)
		return el.Value.(*cacheEntry).client, nil
	}

	c := &Client{
		api: openai.NewClient(
			option.WithBaseURL(base),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
			option.WithRequestTimeout(f.timeout),
		),
		logger: f.logger,
	}
	f.clients[key] = f.order.PushFront(&cacheEntry{key: key, client: c})
	for f.order.Len() > f.capacity {
		oldest := f.order.Back()
		f.order.Remove(oldest)
		delete(f.clients, oldest.Value.(*cacheEntry).key)
	}
	return c, nil
}

// Size はキャッシュ済みクライアント数です。
func (f *Factory) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
