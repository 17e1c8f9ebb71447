// test_proxy は起動中のサーバーの /api/chat にリクエストを送り、応答を確認するスモークテスト用CLIです。
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

type proxyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type proxyRequest struct {
	Messages []proxyMessage `json:"messages"`
	Model    string         `json:"model,omitempty"`
	Token    string         `json:"token"`
}

type proxyResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type proxyError struct {
	Error string `json:"error"`
}

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	baseURL := flag.String("url", "http://localhost:8080", "サーバーのベースURL")
	model := flag.String("model", os.Getenv("HF_MODEL"), "使用するモデル")
	query := flag.String("q", "What is the stock of ITEM-001?", "送信するメッセージ")
	flag.Parse()

	token := os.Getenv("HF_TOKEN")
	if token == "" {
		log.Fatal("FATAL: 環境変数 HF_TOKEN が設定されていません。")
	}

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(60 * time.Second)

	var result proxyResponse
	var apiErr proxyError
	start := time.Now()
	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(proxyRequest{
			Messages: []proxyMessage{{Role: "user", Content: *query}},
			Model:    *model,
			Token:    token,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		log.Fatalf("FATAL: リクエストの送信に失敗しました: %v", err)
	}

	log.Printf("INFO: ステータス %d (%s)", resp.StatusCode(), time.Since(start).Round(time.Millisecond))
	if resp.IsError() {
		log.Fatalf("ERROR: %s", apiErr.Error)
	}
	if len(result.Choices) == 0 {
		log.Fatal("ERROR: 応答にchoicesが含まれていません")
	}
	log.Printf("INFO: 応答: %s", result.Choices[0].Message.Content)
}
