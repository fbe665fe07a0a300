package main

import (
	"context"
	"log"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/gin-gonic/gin"
)

func main() {
	// 创建浏览器执行器与顶层上下文，整个进程复用一个 headless 实例
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		log.Printf("warn: warmup chromedp failed: %v", err)
	}

	r := gin.Default()
	newHandler(&chromeRenderer{browserCtx: browserCtx}).register(r)

	addr := ":" + getEnv("PORT", "4000")
	log.Printf("browser-scraper listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("http server error: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
