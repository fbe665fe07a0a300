package main

import (
	"log"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/LJTian/AIUsageHub/internal/aggregator"
	"github.com/LJTian/AIUsageHub/internal/api"
	"github.com/LJTian/AIUsageHub/internal/config"
	"github.com/LJTian/AIUsageHub/internal/metrics"
	"github.com/LJTian/AIUsageHub/internal/scheduler"
	"github.com/LJTian/AIUsageHub/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg := config.Load()

	cat, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("load catalog failed: %v", err)
	}
	metrics.Register()

	store := storage.NewStore(cfg.DataFile)
	cache := storage.NewViewCache(cfg.RedisAddr)
	defer cache.Close()

	// Postgres 为可选的历史镜像，连接失败不影响主流程
	var mirror *storage.Mirror
	if cfg.PostgresDSN != "" {
		if mirror, err = storage.NewMirror(cfg.PostgresDSN); err != nil {
			log.Printf("warn: init history mirror failed: %v", err)
			mirror = nil
		}
	}

	// 只有配置了 CRON_SPEC 才在 API 进程内定时采集；否则由 cmd/collect 负责写文档
	var sched *scheduler.Scheduler
	if cfg.CronSpec != "" {
		agg := aggregator.New(cfg, cat)
		agg.Store = store
		agg.Cache = cache
		agg.Mirror = mirror

		sched, err = scheduler.New(cfg.CronSpec, agg)
		if err != nil {
			log.Fatalf("init scheduler failed: %v", err)
		}
		sched.Start()
		defer sched.Stop()
		log.Printf("aggregate scheduled with %q", cfg.CronSpec)
	}

	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health、/metrics 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	api.NewServer(store, cache, sched, mirror).RegisterRoutes(r)

	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			c.File(indexFile)
		})
	}

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
