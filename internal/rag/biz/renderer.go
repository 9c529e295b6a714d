package biz

import (
	"sort"
	"strings"
)

const (
	suffixEN = "_en"
	suffixBN = "_bn"

	// contextSeparator 相邻条文之间的分隔符。
	contextSeparator = "\n\n---\n\n"
)

// Bangla keys whose value replaces the document text.
var bnContentKeys = []string{"article_bn", "section_bn"}

// Render turns one retrieved document into a context fragment in lang.
//
// For Bangla the content is taken from article_bn, then section_bn, then the
// document text, and every other _bn key is shown with empty values filled in
// from the matching _en key. For English the text is used as is with every
// _en key.
func Render(doc RetrievedDocument, lang Language) string {
	content := doc.Text
	meta := make(map[string]string)

	if lang == LanguageBangla {
		for _, k := range bnContentKeys {
			if v := doc.Metadata[k]; v != "" {
				content = v
				break
			}
		}
		for k, v := range doc.Metadata {
			if !strings.HasSuffix(k, suffixBN) || isContentKey(k) {
				continue
			}
			if v == "" {
				v = doc.Metadata[strings.TrimSuffix(k, suffixBN)+suffixEN]
			}
			meta[k] = v
		}
	} else {
		for k, v := range doc.Metadata {
			if strings.HasSuffix(k, suffixEN) {
				meta[k] = v
			}
		}
	}

	return content + "\n\n context_meta=" + renderMeta(meta)
}

func isContentKey(k string) bool {
	for _, c := range bnContentKeys {
		if k == c {
			return true
		}
	}
	return false
}

// renderMeta prints meta as {'k': 'v', ...} with sorted keys.
func renderMeta(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quote(k))
		sb.WriteString(": ")
		sb.WriteString(quote(meta[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

// ContextAssembler 把检索结果拼接成上下文块。
type ContextAssembler struct{}

// NewContextAssembler 创建上下文拼接器。
func NewContextAssembler() *ContextAssembler {
	return &ContextAssembler{}
}

// Assemble renders docs in order and joins them. No documents yields "".
func (a *ContextAssembler) Assemble(docs []RetrievedDocument, lang Language) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = Render(d, lang)
	}
	return strings.Join(parts, contextSeparator)
}
