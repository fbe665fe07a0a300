package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/LJTian/AIUsageHub/internal/config"
)

const httpMaxBodyBytes = 10 << 20 // 10MB，防止超大页面拖垮进程

// HTTPFetcher 直接用 net/http 拉取，作为 colly 失败时的兜底
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func (f *HTTPFetcher) Name() string {
	return "http"
}

func (f *HTTPFetcher) Fetch(ctx context.Context, src config.Source) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", fetchErr(src, err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fetchErr(src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fetchErr(src, &StatusError{Code: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxBodyBytes))
	if err != nil {
		return "", fetchErr(src, fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}
