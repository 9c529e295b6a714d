package biz

import (
	"context"
	"time"

	"github.com/kart-io/bdlaw/pkg/llm"
)

// Language 回答语言标签。
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageBangla  Language = "bn"
)

// NormalizeLanguage maps anything other than "bn" to English.
func NormalizeLanguage(s string) Language {
	if Language(s) == LanguageBangla {
		return LanguageBangla
	}
	return LanguageEnglish
}

// ConversationMessage 对话中的一条消息。ID 只在传输层使用，不发送给模型。
type ConversationMessage struct {
	Role    llm.Role `json:"role" binding:"required,oneof=system user assistant"`
	Content string   `json:"content"`
	ID      string   `json:"id,omitempty"`
}

// RewriteResult 查询改写结果。Query 为空表示不需要检索。
type RewriteResult struct {
	Query            string   `json:"query"`
	Language         Language `json:"language"`
	DocumentContains []string `json:"document_contains"`
}

// RetrievedDocument 检索到的一条条文。
type RetrievedDocument struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float64           `json:"distance"`
}

// AnswerRequest 一次问答请求。
type AnswerRequest struct {
	// Messages 完整对话，最后一条必须是 user。
	Messages []ConversationMessage
	// Temperature <= 0 时使用默认值。
	Temperature float32
	// MaxTokens <= 0 时使用配置值。
	MaxTokens int
	// Stream 为 true 时返回未消费的流。
	Stream bool
}

// AnswerResult 问答结果。流式请求只设置 Stream，非流式请求只设置 Text。
type AnswerResult struct {
	// ID 助手消息 ID，反馈时引用。
	ID       string
	Stream   *AnswerStream
	Text     string
	Rewrite  *RewriteResult
	CacheHit bool
}

// Exchange 一次完成的问答，写入会话历史。
type Exchange struct {
	MessageID string                `json:"message_id" bson:"message_id"`
	Messages  []ConversationMessage `json:"messages" bson:"messages"`
	Answer    string                `json:"answer" bson:"answer"`
	Language  Language              `json:"language" bson:"language"`
	CreatedOn time.Time             `json:"created_on" bson:"created_on"`
}

// HistoryWriter 持久化完成的问答。
type HistoryWriter interface {
	SaveExchange(ctx context.Context, ex *Exchange) error
}
