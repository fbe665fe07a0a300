package collector

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/LJTian/AIUsageHub/internal/config"
)

const collyMaxBodyBytes = 10 << 20 // 10MB

// CollyFetcher 用 colly 抓取整页原文（包括标签和脚本），与网页实际下发的内容一致
type CollyFetcher struct {
	UserAgent string
	Timeout   time.Duration
}

func (f *CollyFetcher) Name() string {
	return "colly"
}

func (f *CollyFetcher) Fetch(ctx context.Context, src config.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fetchErr(src, err)
	}

	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.MaxBodySize(collyMaxBodyBytes),
	)
	c.SetRequestTimeout(requestTimeout(ctx, f.Timeout))
	// 非 2xx 也走 OnResponse，由下面统一转成 StatusError
	c.ParseHTTPErrorResponse = true

	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	if err := c.Visit(src.URL); err != nil {
		return "", fetchErr(src, err)
	}
	if status < 200 || status >= 300 {
		return "", fetchErr(src, &StatusError{Code: status})
	}
	return string(body), nil
}

// requestTimeout 取配置超时与 ctx 剩余时间中较小者
func requestTimeout(ctx context.Context, def time.Duration) time.Duration {
	if def <= 0 {
		def = 20 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 && left < def {
			return left
		}
	}
	return def
}
