package collector

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/LJTian/AIUsageHub/internal/config"
)

// ChainFetcher 依次尝试多个 Fetcher，返回第一个成功的结果
type ChainFetcher struct {
	Fetchers []Fetcher
}

func (c *ChainFetcher) Name() string {
	names := make([]string, len(c.Fetchers))
	for i, f := range c.Fetchers {
		names[i] = f.Name()
	}
	return strings.Join(names, ">")
}

func (c *ChainFetcher) Fetch(ctx context.Context, src config.Source) (string, error) {
	if len(c.Fetchers) == 0 {
		return "", fetchErr(src, errors.New("no fetcher configured"))
	}
	var lastErr error
	for i, f := range c.Fetchers {
		text, err := f.Fetch(ctx, src)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		var se *StatusError
		if errors.As(err, &se) && se.Permanent() {
			break
		}
		if i < len(c.Fetchers)-1 {
			log.Printf("fetch %s via %s failed, trying next: %v", src.Name, f.Name(), err)
		}
	}
	return "", fetchErr(src, lastErr)
}

// NewDefault 按配置组装默认抓取链：colly -> net/http -> (可选) 浏览器渲染。
// 浏览器统一取 html，与前两种方式一样交给 TEXT_MODE 决定是否再做正文提取。
func NewDefault(cfg *config.Config) Fetcher {
	fetchers := []Fetcher{
		&CollyFetcher{Timeout: cfg.FetchTimeout},
		&HTTPFetcher{},
	}
	if cfg.BrowserScraperURL != "" {
		fetchers = append(fetchers, &BrowserFetcher{BaseURL: cfg.BrowserScraperURL, Mode: "html"})
	}
	return &ChainFetcher{Fetchers: fetchers}
}
