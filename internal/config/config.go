package config

import (
	"log"
	"os"
	"time"
)

type Config struct {
	AppPort string

	// 持久化文档路径，采集端写、展示端读
	DataFile string
	WebRoot  string

	// 为空时 api 进程不做定时采集，仅由 cmd/collect 手动/外部调度触发
	CronSpec string

	FetchTimeout time.Duration
	// raw: 对整页原文计分；readable: 先用 readability 提取正文再计分
	TextMode    string
	HistoryTZ   *time.Location
	CatalogFile string

	BrowserScraperURL string

	PostgresDSN string
	RedisAddr   string

	BasicAuthUser string
	BasicAuthPass string
}

func Load() *Config {
	cfg := &Config{
		AppPort:           getEnv("APP_PORT", "9000"),
		DataFile:          getEnv("DATA_FILE", "data/data.json"),
		WebRoot:           getEnv("WEB_ROOT", "web"),
		CronSpec:          getEnv("CRON_SPEC", ""),
		FetchTimeout:      getDuration("FETCH_TIMEOUT", 20*time.Second),
		TextMode:          getEnv("TEXT_MODE", TextModeRaw),
		HistoryTZ:         getLocation("HISTORY_TZ", time.UTC),
		CatalogFile:       getEnv("CATALOG_FILE", ""),
		BrowserScraperURL: getEnv("BROWSER_SCRAPER_URL", ""),
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		BasicAuthUser:     getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:     getEnv("APP_BASIC_PASS", ""),
	}

	if cfg.TextMode != TextModeRaw && cfg.TextMode != TextModeReadable {
		log.Printf("warn: unknown TEXT_MODE %q, fallback to %s", cfg.TextMode, TextModeRaw)
		cfg.TextMode = TextModeRaw
	}

	log.Printf("config loaded: port=%s data=%s cron=%q timeout=%s mode=%s",
		cfg.AppPort, cfg.DataFile, cfg.CronSpec, cfg.FetchTimeout, cfg.TextMode)
	return cfg
}

const (
	TextModeRaw      = "raw"
	TextModeReadable = "readable"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("warn: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func getLocation(key string, def *time.Location) *time.Location {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		log.Printf("warn: invalid %s=%q: %v", key, v, err)
		return def
	}
	return loc
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}

// Today 返回 loc 下的日历日期（YYYY-MM-DD），作为历史记录的日期
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}
