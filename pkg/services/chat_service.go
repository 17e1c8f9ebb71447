package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bms-chat-api/pkg/groq"
	"bms-chat-api/pkg/huggingface"
	"bms-chat-api/pkg/logging"
	"bms-chat-api/pkg/metrics"
	"bms-chat-api/pkg/models"

	"go.uber.org/zap"
)

// プロバイダー名
const (
	ProviderMock        = "mock"
	ProviderGroq        = "groq"
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
)

const historyLimit = 10

const geminiNotice = "Google Gemini integration coming soon! Please select Groq or Hugging Face for now."

var (
	// ErrMissingCredential は資格情報が未設定であることを示します。上流への呼び出しは行われていません。
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential は上流が資格情報を拒否したことを示します。
	ErrInvalidCredential = errors.New("invalid credential")
)

// ProviderConfig は呼び出しごとに渡されるプロバイダー設定です。
type ProviderConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"-"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ChatRequest はチャット1回分の入力です。
type ChatRequest struct {
	Query    string
	History  []models.HistoryMessage
	Role     models.Role
	Provider ProviderConfig
}

// Reply はアシスタントの応答です。Offlineはルールベース応答へ切り替えたことを示します。
type Reply struct {
	Text     string `json:"text"`
	Offline  bool   `json:"offline"`
	Provider string `json:"provider"`
}

// ChatProvider は上流のAIプロバイダーです。
type ChatProvider interface {
	Complete(ctx context.Context, cfg ProviderConfig, messages []models.HistoryMessage) (string, error)
}

// ChatService はプロバイダーの選択とルールベース応答へのフォールバックを行います。
type ChatService struct {
	contextBuilder  *ContextBuilder
	responder       *MockResponder
	providers       map[string]ChatProvider
	defaultProvider string
	defaults        map[string]ProviderConfig
	timeout         time.Duration
	logger          *zap.Logger
}

// ChatServiceOptions ChatServiceの設定
type ChatServiceOptions struct {
	DefaultProvider string
	// Defaults はリクエストでAPIキーやモデルが省略された場合にプロバイダーごとに使う値です。
	Defaults map[string]ProviderConfig
	Timeout  time.Duration
}

// NewChatService は新しいChatServiceを生成します。
func NewChatService(builder *ContextBuilder, responder *MockResponder, providers map[string]ChatProvider, opts ChatServiceOptions, logger *zap.Logger) *ChatService {
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = ProviderGroq
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ChatService{
		contextBuilder:  builder,
		responder:       responder,
		providers:       providers,
		defaultProvider: opts.DefaultProvider,
		defaults:        opts.Defaults,
		timeout:         opts.Timeout,
		logger:          logging.OrNop(logger).Named("chat"),
	}
}

// Respond はクエリに応答します。エラーは返さず、必ず表示可能なテキストを返します。
func (s *ChatService) Respond(ctx context.Context, req ChatRequest) Reply {
	name := s.resolveProvider(req.Provider.Provider)

	switch name {
	case ProviderMock:
		metrics.RecordReply(name, "offline")
		return Reply{Text: s.responder.Respond(ctx, req.Query), Provider: name}
	case ProviderGemini:
		metrics.RecordReply(name, "notice")
		return Reply{Text: geminiNotice, Provider: name}
	}

	provider, ok := s.providers[name]
	if !ok {
		s.logger.Error("プロバイダーが登録されていません", zap.String("provider", name))
		metrics.RecordReply(name, "fallback")
		return Reply{Text: s.responder.Respond(ctx, req.Query), Offline: true, Provider: name}
	}

	cfg := req.Provider
	cfg.Provider = name
	if def, ok := s.defaults[name]; ok {
		// サーバーのキーは既定のエンドポイントにのみ送る
		if cfg.APIKey == "" && (cfg.Endpoint == "" || cfg.Endpoint == def.Endpoint) {
			cfg.APIKey = def.APIKey
		}
		if cfg.Model == "" {
			cfg.Model = def.Model
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = def.Endpoint
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("AIプロバイダーに接続します", zap.String("provider", name), zap.String("role", string(req.Role)))
	text, err := provider.Complete(callCtx, cfg, s.buildMessages(req))
	switch {
	case err == nil:
		metrics.RecordReply(name, "success")
		return Reply{Text: text, Provider: name}
	case errors.Is(err, ErrMissingCredential):
		metrics.RecordReply(name, "config_error")
		return Reply{Text: missingCredentialText(name), Provider: name}
	case errors.Is(err, ErrInvalidCredential):
		s.logger.Warn("資格情報が拒否されました", zap.String("provider", name), zap.Error(err))
		metrics.RecordReply(name, "invalid_credentials")
		return Reply{Text: invalidCredentialText(name, err), Provider: name}
	default:
		s.logger.Error("オンラインAIの呼び出しに失敗したためオフライン応答に切り替えます",
			zap.String("provider", name), zap.Error(err))
		metrics.RecordReply(name, "fallback")
		return Reply{Text: s.responder.Respond(ctx, req.Query), Offline: true, Provider: name}
	}
}

// resolveProvider は未指定ならデフォルト、未知の値ならGroqを返します。
func (s *ChatService) resolveProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = s.defaultProvider
	}
	switch name {
	case ProviderMock, ProviderGroq, ProviderHuggingFace, ProviderGemini:
		return name
	}
	return ProviderGroq
}

// buildMessages はシステムコンテキスト、直近の履歴、クエリの順にメッセージを並べます。
func (s *ChatService) buildMessages(req ChatRequest) []models.HistoryMessage {
	messages := []models.HistoryMessage{{Role: string(models.MessageRoleSystem), Content: s.contextBuilder.Build(req.Role)}}
	messages = append(messages, TrimHistory(req.History)...)
	return append(messages, models.HistoryMessage{Role: string(models.MessageRoleUser), Content: req.Query})
}

// TrimHistory は直近10件に絞り、レポートマーカーを除去します。user以外の役割はassistantとして扱います。
func TrimHistory(history []models.HistoryMessage) []models.HistoryMessage {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	out := make([]models.HistoryMessage, 0, len(history))
	for _, h := range history {
		role := models.MessageRoleAssistant
		if h.Role == string(models.MessageRoleUser) {
			role = models.MessageRoleUser
		}
		out = append(out, models.HistoryMessage{Role: string(role), Content: StripSentinel(h.Content)})
	}
	return out
}

func missingCredentialText(provider string) string {
	switch provider {
	case ProviderHuggingFace:
		return "**Configuration Error:** Missing Hugging Face token. Please add it in Settings."
	default:
		return "**Configuration Error:** Missing Groq API Key. Please add it in Settings."
	}
}

func invalidCredentialText(provider string, err error) string {
	return fmt.Sprintf("**Error:** The %s API rejected your credentials (401). Please check your API key in Settings.\n\n*Technical Details:* %v",
		displayName(provider), err)
}

func displayName(provider string) string {
	switch provider {
	case ProviderHuggingFace:
		return "Hugging Face"
	case ProviderGroq:
		return "Groq"
	}
	return provider
}

// GroqProvider はgroq.Factoryをプロバイダーとして使います。
type GroqProvider struct {
	factory *groq.Factory
}

// NewGroqProvider は新しいGroqProviderを生成します。
func NewGroqProvider(factory *groq.Factory) *GroqProvider {
	return &GroqProvider{factory: factory}
}

func (p *GroqProvider) Complete(ctx context.Context, cfg ProviderConfig, messages []models.HistoryMessage) (string, error) {
	client, err := p.factory.Client(cfg.APIKey, cfg.Endpoint)
	if err != nil {
		return "", classifyProviderError(err)
	}
	opts := groq.DefaultChatOptions()
	if cfg.Model != "" {
		opts.Model = cfg.Model
	}
	text, err := client.Chat(ctx, messages, opts)
	if err != nil {
		return "", classifyProviderError(err)
	}
	return text, nil
}

// HuggingFaceProvider はルータークライアントをプロバイダーとして使います。
type HuggingFaceProvider struct {
	client *huggingface.Client
}

// NewHuggingFaceProvider は新しいHuggingFaceProviderを生成します。
func NewHuggingFaceProvider(client *huggingface.Client) *HuggingFaceProvider {
	return &HuggingFaceProvider{client: client}
}

func (p *HuggingFaceProvider) Complete(ctx context.Context, cfg ProviderConfig, messages []models.HistoryMessage) (string, error) {
	res, err := p.client.CompleteAt(ctx, cfg.Endpoint, cfg.APIKey, cfg.Model, toRouterMessages(messages))
	if err != nil {
		return "", classifyProviderError(err)
	}
	if text := strings.TrimSpace(res.Normalize().Text()); text != "" {
		return text, nil
	}
	return huggingface.NoResponseText, nil
}

func toRouterMessages(messages []models.HistoryMessage) []huggingface.Message {
	out := make([]huggingface.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, huggingface.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// classifyProviderError はクライアント固有のエラーを共通の分類に変換します。
func classifyProviderError(err error) error {
	switch {
	case errors.Is(err, groq.ErrMissingAPIKey), errors.Is(err, huggingface.ErrMissingToken):
		return fmt.Errorf("%w: %w", ErrMissingCredential, err)
	case errors.Is(err, groq.ErrInvalidCredentials), errors.Is(err, huggingface.ErrInvalidCredentials):
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return err
}
