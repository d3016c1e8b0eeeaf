package chat

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nao1215/taskdash/internal/aggregator"
	"github.com/nao1215/taskdash/pkg/httpclient"
	"github.com/nao1215/taskdash/pkg/notifytype"
)

// defaultTimeout はWebhook送信のタイムアウト。
// 配信失敗を早期に検知するため、サービス間通信より短く設定する。
const defaultTimeout = 10 * time.Second

// Config はWebhookチャンネルの設定。
type Config struct {
	// Enabled は配信の有効フラグ。
	Enabled bool
	// WebhookURL はIncoming WebhookのURL。
	WebhookURL string
	// AllowedTypes は配信を許可する通知カテゴリ。空の場合はすべて許可する。
	AllowedTypes []notifytype.Type
	// Timeout は1回の送信のタイムアウト。ゼロ値の場合はデフォルトを使用する。
	Timeout time.Duration
}

// ConfigFromEnv は環境変数からWebhookチャンネルの設定を読み込む。
//   - CHAT_WEBHOOK_ENABLED: "true" で有効化
//   - CHAT_WEBHOOK_URL:     Incoming WebhookのURL
//   - CHAT_ALLOWED_TYPES:   許可カテゴリのカンマ区切り（空=すべて許可）
func ConfigFromEnv() Config {
	cfg := Config{
		Enabled:    os.Getenv("CHAT_WEBHOOK_ENABLED") == "true",
		WebhookURL: os.Getenv("CHAT_WEBHOOK_URL"),
	}
	if raw := os.Getenv("CHAT_ALLOWED_TYPES"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				cfg.AllowedTypes = append(cfg.AllowedTypes, notifytype.Type(t))
			}
		}
	}
	return cfg
}

// Field はリッチ通知に含めるラベル付きフィールド。
type Field struct {
	// Title はフィールドのラベル。
	Title string `json:"title"`
	// Value はフィールドの値。
	Value string `json:"value"`
	// Short は短い表示（横並び）を許可するかどうか。
	Short bool `json:"short"`
}

// attachment はチャットサービスの添付メッセージ構造。
type attachment struct {
	// Fallback は添付を表示できないクライアント向けの代替テキスト。
	Fallback string `json:"fallback"`
	// Color は添付の帯の色（例: "#36a64f"）。
	Color string `json:"color,omitempty"`
	// Title は添付の見出し。
	Title string `json:"title"`
	// Text は添付の本文。
	Text string `json:"text"`
	// Fields はラベル付きフィールドのリスト。
	Fields []Field `json:"fields,omitempty"`
}

// webhookPayload はIncoming WebhookへPOSTするJSONボディ。
type webhookPayload struct {
	// Text はメッセージ本文（Markdown）。
	Text string `json:"text,omitempty"`
	// Attachments は添付メッセージのリスト。
	Attachments []attachment `json:"attachments,omitempty"`
}

// WebhookChannel はIncoming Webhookへの配信チャンネル。
// aggregator.Channel インターフェースを実装する。
type WebhookChannel struct {
	// cfg はチャンネルの設定。
	cfg Config
	// client はWebhookへのHTTPクライアント。
	client *httpclient.Client
	// allowed は許可カテゴリの集合。
	allowed map[notifytype.Type]struct{}
}

// NewWebhookChannel は新しいWebhookチャンネルを生成する。
func NewWebhookChannel(cfg Config) *WebhookChannel {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	allowed := make(map[notifytype.Type]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = struct{}{}
	}

	return &WebhookChannel{
		cfg:     cfg,
		client:  httpclient.NewWithTimeout(cfg.WebhookURL, timeout),
		allowed: allowed,
	}
}

// IsEnabled は配信が有効かどうかを返す。URL未設定の場合も無効として扱う。
func (w *WebhookChannel) IsEnabled() bool {
	return w.cfg.Enabled && w.cfg.WebhookURL != ""
}

// ShouldSendType は指定カテゴリの配信可否を返す。
// 有効かつ（許可リストが空、またはカテゴリが許可リストに含まれる）場合にtrue。
func (w *WebhookChannel) ShouldSendType(t notifytype.Type) bool {
	if !w.IsEnabled() {
		return false
	}
	if len(w.allowed) == 0 {
		return true
	}
	_, ok := w.allowed[t]
	return ok
}

// SendGroupedNotification はグループ通知を1件のメッセージとして配信する。
// 見出し・タスク名・宛先の列挙・補足本文をMarkdownに整形してPOSTする。
func (w *WebhookChannel) SendGroupedNotification(g *aggregator.GroupedNotification) bool {
	names := make([]string, 0, len(g.Recipients))
	for _, r := range g.Recipients {
		names = append(names, r.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#### %s\n", g.Title)
	fmt.Fprintf(&b, "タスク: %s\n", g.TaskName)
	fmt.Fprintf(&b, "宛先: %s\n", strings.Join(names, ", "))
	if g.AdditionalContent != "" {
		fmt.Fprintf(&b, "\n%s\n", g.AdditionalContent)
	}

	return w.post(webhookPayload{Text: b.String()})
}

// SendMessage はプレーンテキストのメッセージを配信する。
func (w *WebhookChannel) SendMessage(text string) bool {
	return w.post(webhookPayload{Text: text})
}

// SendRichNotification は色とラベル付きフィールドを持つリッチメッセージを配信する。
func (w *WebhookChannel) SendRichNotification(title, text, color string, fields []Field) bool {
	return w.post(webhookPayload{
		Attachments: []attachment{{
			Fallback: title,
			Color:    color,
			Title:    title,
			Text:     text,
			Fields:   fields,
		}},
	})
}

// post はペイロードをWebhookへPOSTする。
// トランスポートエラーと非2xx応答はいずれもfalseとログ1行に変換する。
func (w *WebhookChannel) post(payload webhookPayload) bool {
	if !w.IsEnabled() {
		return false
	}

	if err := w.client.PostJSON(context.Background(), "", payload, nil); err != nil {
		log.Printf("[Chat] Webhookへの送信に失敗: %v", err)
		return false
	}
	return true
}
