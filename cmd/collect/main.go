package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/LJTian/AIUsageHub/internal/aggregator"
	"github.com/LJTian/AIUsageHub/internal/config"
	"github.com/LJTian/AIUsageHub/internal/metrics"
	"github.com/LJTian/AIUsageHub/internal/storage"
)

// 仅执行一轮采集的命令行入口：适合手动触发或交给外部调度（cron / systemd timer）
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	if err := newApp().Run(os.Args); err != nil {
		log.Printf("aggregate failed: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "collect",
		Usage: "Fetch sources, score AI usage categories and append to the data document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "Document path (overrides DATA_FILE)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Compute and print percentages without writing"},
			&cli.BoolFlag{Name: "json", Usage: "Print the run result as JSON"},
		},
		Action: run,
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func run(c *cli.Context) error {
	cfg := config.Load()
	if p := c.String("data"); p != "" {
		cfg.DataFile = p
	}

	cat, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}

	metrics.Register()
	agg := aggregator.New(cfg, cat)
	if cfg.PostgresDSN != "" {
		m, err := storage.NewMirror(cfg.PostgresDSN)
		if err != nil {
			log.Printf("warn: init history mirror failed: %v", err)
		} else {
			agg.Mirror = m
		}
	}
	agg.Cache = storage.NewViewCache(cfg.RedisAddr)
	defer agg.Cache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := agg.Run(ctx, aggregator.RunOptions{DryRun: c.Bool("dry-run")})
	if err != nil {
		return err
	}

	if c.Bool("json") {
		bs, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(bs))
	}
	if n := res.Failed(); n > 0 {
		log.Printf("warn: %d/%d sources failed, verify results manually", n, len(res.Sources))
	}
	return nil
}
