package huggingface

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message チャット形式のメッセージ
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest chat completions形式のリクエスト
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// GenerationParameters テキスト生成形式のパラメータ
type GenerationParameters struct {
	MaxNewTokens   int      `json:"max_new_tokens"`
	Temperature    *float64 `json:"temperature,omitempty"`
	ReturnFullText bool     `json:"return_full_text"`
}

// GenerationRequest テキスト生成形式のリクエスト
type GenerationRequest struct {
	Inputs     string               `json:"inputs"`
	Parameters GenerationParameters `json:"parameters"`
}

// ResultKind 上流レスポンスの形式
type ResultKind int

const (
	KindChat ResultKind = iota + 1
	KindGeneration
)

func (k ResultKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindGeneration:
		return "generation"
	}
	return "unknown"
}

// Result は形式判定済みの上流レスポンスです。KindChatならContent、KindGenerationならTextが有効です。
type Result struct {
	Kind    ResultKind
	Content string
	Text    string
}

// ChatCompletion UIへ返す正規化済みの形式 {choices:[{message:{content}}]}
type ChatCompletion struct {
	Choices []Choice `json:"choices"`
}

// Choice 応答候補
type Choice struct {
	Message ChoiceMessage `json:"message"`
}

// ChoiceMessage 応答メッセージ
type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Text は最初の候補の本文を返します。
func (c ChatCompletion) Text() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// instructionCloseMarker テキスト生成モデルが応答にエコーする指示テンプレートの終端
const instructionCloseMarker = "[/INST]"

// Normalize は両形式を単一のchat completion形式に変換します。
func (r Result) Normalize() ChatCompletion {
	content := r.Content
	if r.Kind == KindGeneration {
		content = CleanGeneratedText(r.Text)
	}
	return ChatCompletion{
		Choices: []Choice{{Message: ChoiceMessage{Role: "assistant", Content: content}}},
	}
}

// CleanGeneratedText は最後の指示テンプレート終端までを取り除きます。
func CleanGeneratedText(text string) string {
	if idx := strings.LastIndex(text, instructionCloseMarker); idx >= 0 {
		text = text[idx+len(instructionCloseMarker):]
	}
	return strings.TrimSpace(text)
}

// FlattenPrompt は会話を "role: content" 行に展開し、最後に "assistant:" 行を付けます。
func FlattenPrompt(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("assistant:")
	return sb.String()
}

// DetectShape はレスポンスボディの形式を判定します。
func DetectShape(body []byte) (Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Result{}, errors.New("empty response body")
	}

	switch trimmed[0] {
	case '[':
		var generations []struct {
			GeneratedText string `json:"generated_text"`
		}
		if err := json.Unmarshal(trimmed, &generations); err != nil {
			return Result{}, fmt.Errorf("failed to parse generation response: %w", err)
		}
		if len(generations) == 0 {
			return Result{}, errors.New("generation response contained no results")
		}
		return Result{Kind: KindGeneration, Text: generations[0].GeneratedText}, nil

	case '{':
		var obj struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			GeneratedText *string `json:"generated_text"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Result{}, fmt.Errorf("failed to parse chat response: %w", err)
		}
		if len(obj.Choices) > 0 {
			return Result{Kind: KindChat, Content: obj.Choices[0].Message.Content}, nil
		}
		if obj.GeneratedText != nil {
			return Result{Kind: KindGeneration, Text: *obj.GeneratedText}, nil
		}
	}
	return Result{}, fmt.Errorf("unrecognized response shape: %s", truncate(string(trimmed), 200))
}

// truncate は先頭n文字に切り詰めます。マルチバイト文字を途中で切りません。
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
