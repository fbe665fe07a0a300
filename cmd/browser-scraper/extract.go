package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gin-gonic/gin"
)

const (
	modeHTML = "html"
	modeText = "text"

	defaultMaxChars = 2_000_000
	renderTimeout   = 20 * time.Second
)

type extractRequest struct {
	URL      string `json:"url"`
	Mode     string `json:"mode"`
	MaxChars int    `json:"maxChars"`
}

type extractResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// renderer 抽象出浏览器渲染，方便测试
type renderer interface {
	Render(ctx context.Context, url, mode string) (string, error)
}

type chromeRenderer struct {
	browserCtx context.Context
}

func (r *chromeRenderer) Render(ctx context.Context, url, mode string) (string, error) {
	// 每个请求开一个新 tab，复用同一个浏览器进程
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, renderTimeout)
	defer cancel()
	// 调用方断开时一并取消
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var out string
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if mode == modeText {
		actions = append(actions, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &out))
	} else {
		actions = append(actions, chromedp.OuterHTML("html", &out, chromedp.ByQuery))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", err
	}
	return out, nil
}

type handler struct {
	render renderer
}

func newHandler(r renderer) *handler {
	return &handler{render: r}
}

func (h *handler) register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/extract", h.extract)
}

func (h *handler) extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "invalid json"})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, extractResponse{Error: "url is required"})
		return
	}
	switch req.Mode {
	case "":
		req.Mode = modeHTML
	case modeHTML, modeText:
	default:
		c.JSON(http.StatusBadRequest, extractResponse{Error: "mode must be html or text"})
		return
	}
	if req.MaxChars <= 0 {
		req.MaxChars = defaultMaxChars
	}

	text, err := h.render.Render(c.Request.Context(), req.URL, req.Mode)
	if err != nil {
		log.Printf("extract error: %v (url=%s)", err, req.URL)
		c.JSON(http.StatusOK, extractResponse{Error: err.Error()})
		return
	}

	if req.Mode == modeText {
		text = trimWhitespace(text)
	}
	if text == "" {
		c.JSON(http.StatusOK, extractResponse{Error: "empty content"})
		return
	}

	c.JSON(http.StatusOK, extractResponse{OK: true, Text: truncateRunes(text, req.MaxChars)})
}

// truncateRunes 按 rune 截断，避免多字节字符被截成半个
func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}

func trimWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
