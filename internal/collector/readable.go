package collector

import (
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// ExtractReadable 用 readability 从 HTML 中提取正文文本，去掉导航、脚本等噪音
func ExtractReadable(rawHTML, pageURL string) (string, error) {
	var u *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err == nil {
			u = parsed
		}
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("readability: empty content")
	}
	return text, nil
}
