package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LJTian/AIUsageHub/internal/config"
)

const browserMaxResponseBytes = 16 << 20

// BrowserFetcher 调用 cmd/browser-scraper 渲染需要执行 JS 的页面
type BrowserFetcher struct {
	BaseURL string
	Client  *http.Client
	// html: 渲染后的完整 HTML；text: 页面可见文本
	Mode string
}

type extractRequest struct {
	URL      string `json:"url"`
	Mode     string `json:"mode"`
	MaxChars int    `json:"maxChars,omitempty"`
}

type extractResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (f *BrowserFetcher) Name() string {
	return "browser"
}

func (f *BrowserFetcher) Fetch(ctx context.Context, src config.Source) (string, error) {
	mode := f.Mode
	if mode == "" {
		mode = "html"
	}
	payload, err := json.Marshal(extractRequest{URL: src.URL, Mode: mode})
	if err != nil {
		return "", fetchErr(src, err)
	}

	endpoint := strings.TrimRight(f.BaseURL, "/") + "/extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fetchErr(src, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fetchErr(src, fmt.Errorf("browser-scraper: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fetchErr(src, fmt.Errorf("browser-scraper: %w %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	var out extractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, browserMaxResponseBytes)).Decode(&out); err != nil {
		return "", fetchErr(src, fmt.Errorf("browser-scraper: decode: %w", err))
	}
	if !out.OK {
		return "", fetchErr(src, errors.New("browser-scraper: "+out.Error))
	}
	return out.Text, nil
}
