package cards

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"tracechat/internal/domain"
)

// fencePattern matches a fenced code block whose closing fence may not have
// arrived yet.
var fencePattern = regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\r?\\n?(.*?)(?:```|\\z)")

// RenderBody interprets content under ct. It never fails: content that does
// not fit its declared type is shown as literal text.
func RenderBody(content string, ct domain.ContentType, md domain.MarkdownRenderer, logger *slog.Logger) domain.CardBody {
	switch ct {
	case domain.ContentJSON:
		return jsonBody(content)
	case domain.ContentCode:
		return codeBody(content)
	case domain.ContentMarkdown:
		return markdownBody(content, md, logger)
	default:
		return domain.CardBody{Format: domain.BodyPlain, Text: content}
	}
}

func jsonBody(content string) domain.CardBody {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return domain.CardBody{Format: domain.BodyPlain, Text: content}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return domain.CardBody{Format: domain.BodyPlain, Text: content}
	}
	return domain.CardBody{Format: domain.BodyJSON, Text: buf.String()}
}

func codeBody(content string) domain.CardBody {
	if value, field, ok := ExtractCodeField(content); ok {
		lang := ""
		if field == "sql" {
			lang = "sql"
		}
		return domain.CardBody{Format: domain.BodyCode, Text: value, Language: lang}
	}
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		return domain.CardBody{Format: domain.BodyCode, Text: strings.TrimRight(m[2], "\r\n"), Language: m[1]}
	}
	return domain.CardBody{Format: domain.BodyPlain, Text: content}
}

func markdownBody(content string, md domain.MarkdownRenderer, logger *slog.Logger) (body domain.CardBody) {
	if md == nil {
		return domain.CardBody{Format: domain.BodyPlain, Text: content}
	}
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Warn("markdown render panicked", "panic", fmt.Sprint(r))
			}
			body = domain.CardBody{Format: domain.BodyPlain, Text: content}
		}
	}()
	return domain.CardBody{Format: domain.BodyMarkdown, Text: md.Render(content)}
}
