package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed assistant_prompt.yaml
var defaultAssistantPrompt []byte

// ReportMarker はレポート出力可能な応答の末尾に付けるタグです。応答の後処理はこの値で検出・除去します。
const ReportMarker = "<<GENERATE_REPORT>>"

// AssistantPromptConfig はassistant_prompt.yamlの構造を定義
type AssistantPromptConfig struct {
	System struct {
		Role     string `yaml:"role"`
		Version  string `yaml:"version"`
		Language string `yaml:"language"`
	} `yaml:"system"`

	Persona struct {
		Title string `yaml:"title"`
		Tone  string `yaml:"tone"`
		Goal  string `yaml:"goal"`
	} `yaml:"persona"`

	ResponseStructure []string `yaml:"response_structure"`
	OrderLogic        []string `yaml:"order_logic"`
	Presentation      []string `yaml:"presentation"`

	// 競合比較の表示ルール。顧客向けには含めません
	CompetitorPresentation []string `yaml:"competitor_presentation"`

	Report struct {
		Triggers     []string `yaml:"triggers"`
		Instructions []string `yaml:"instructions"`
		Marker       string   `yaml:"marker"`
	} `yaml:"report"`

	CustomerConstraints []string `yaml:"customer_constraints"`
	Unknowns            string   `yaml:"unknowns"`
}

// LoadAssistantPrompt はYAMLからアシスタントの指示を読み込みます。pathが空なら埋め込みのデフォルトを使います。
func LoadAssistantPrompt(path string) (*AssistantPromptConfig, error) {
	data := defaultAssistantPrompt
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read assistant prompt %s: %w", path, err)
		}
		data = b
	}

	var cfg AssistantPromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse assistant prompt: %w", err)
	}
	if cfg.Report.Marker == "" {
		return nil, fmt.Errorf("assistant prompt is missing report.marker")
	}
	if cfg.Report.Marker != ReportMarker {
		return nil, fmt.Errorf("assistant prompt report.marker must be %q, got %q", ReportMarker, cfg.Report.Marker)
	}
	return &cfg, nil
}

// MustDefaultAssistantPrompt は埋め込みのデフォルト設定を返します。
func MustDefaultAssistantPrompt() *AssistantPromptConfig {
	cfg, err := LoadAssistantPrompt("")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Intro はプロンプト冒頭の役割説明です。
func (c *AssistantPromptConfig) Intro() string {
	return fmt.Sprintf("You are the %s.\nYou have access to the following REAL-TIME enterprise data:\n", c.System.Role)
}

// BuildInstructions はデータセクションの後に続く指示ブロックを構築します。
// customerがtrueのときは顧客向けの制約を追加します。
func (c *AssistantPromptConfig) BuildInstructions(customer bool) string {
	var sb strings.Builder

	sb.WriteString("### Instructions\n")
	sb.WriteString(fmt.Sprintf("1. **Role:** Act as a **%s**.\n", c.Persona.Title))
	sb.WriteString(fmt.Sprintf("   - **Tone:** %s\n", c.Persona.Tone))
	sb.WriteString(fmt.Sprintf("   - **Goal:** %s\n", c.Persona.Goal))

	sb.WriteString("2. **Response Structure:**\n")
	writeBullets(&sb, c.ResponseStructure)

	if !customer {
		sb.WriteString("3. **Order Processing Logic (CRITICAL):**\n")
		writeBullets(&sb, c.OrderLogic)
	} else {
		sb.WriteString("3. **Customer Constraints (CRITICAL):**\n")
		writeBullets(&sb, c.CustomerConstraints)
	}

	sb.WriteString("4. **Data Presentation:**\n")
	writeBullets(&sb, c.Presentation)
	if !customer {
		writeBullets(&sb, c.CompetitorPresentation)
	}

	sb.WriteString(fmt.Sprintf("5. **Reports:** If the user asks to %s:\n", strings.Join(c.Report.Triggers, " or ")))
	writeBullets(&sb, c.Report.Instructions)
	sb.WriteString(fmt.Sprintf("   - **ALWAYS** append the tag `%s` at the very end.\n", c.Report.Marker))

	sb.WriteString(fmt.Sprintf("6. **Unknowns:** %s\n", c.Unknowns))
	return sb.String()
}

func writeBullets(sb *strings.Builder, lines []string) {
	for _, line := range lines {
		sb.WriteString("   - ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}
