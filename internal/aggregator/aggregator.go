package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/LJTian/AIUsageHub/internal/collector"
	"github.com/LJTian/AIUsageHub/internal/config"
	"github.com/LJTian/AIUsageHub/internal/metrics"
	"github.com/LJTian/AIUsageHub/internal/processor"
	"github.com/LJTian/AIUsageHub/internal/scorer"
	"github.com/LJTian/AIUsageHub/internal/storage"
)

// SourceResult 单个数据源在本轮中的结果
type SourceResult struct {
	Source string `json:"source"`
	Bytes  int    `json:"bytes"`
	Hits   int    `json:"hits"`
	Error  string `json:"error,omitempty"`
}

// Result 一轮采集的汇总
type Result struct {
	RunID       string             `json:"runId"`
	Date        string             `json:"date"`
	Sources     []SourceResult     `json:"sources"`
	Aggregate   scorer.ScoreVector `json:"aggregate"`
	Names       []string           `json:"names"`
	Percentages []int              `json:"percentages"`
	DryRun      bool               `json:"dryRun"`
}

// Failed 抓取失败的数据源数量
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Error != "" {
			n++
		}
	}
	return n
}

type RunOptions struct {
	// 只计算并打印，不写文档
	DryRun bool
}

// Aggregator 一轮完整的 抓取 -> 计分 -> 汇总归一 -> 合并落盘
type Aggregator struct {
	Catalog  *config.Catalog
	Fetcher  collector.Fetcher
	Scorer   scorer.Scorer
	Store    *storage.Store
	Timeout  time.Duration
	TextMode string
	Location *time.Location
	Now      func() time.Time

	// 可选
	Mirror *storage.Mirror
	Cache  *storage.ViewCache
}

// New 按配置组装默认的聚合器
func New(cfg *config.Config, cat *config.Catalog) *Aggregator {
	return &Aggregator{
		Catalog:  cat,
		Fetcher:  collector.NewDefault(cfg),
		Scorer:   scorer.NewKeywordScorer(scorer.KeywordSetFromCatalog(cat)),
		Store:    storage.NewStore(cfg.DataFile),
		Timeout:  cfg.FetchTimeout,
		TextMode: cfg.TextMode,
		Location: cfg.HistoryTZ,
		Now:      config.Now,
	}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Run 执行一轮采集。单个数据源失败只记录日志；文档读写失败返回错误且不会写入任何内容。
func (a *Aggregator) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	res := &Result{
		RunID:  uuid.NewString(),
		Names:  a.Catalog.Names(),
		DryRun: opts.DryRun,
	}
	log.Printf("start aggregate run %s, sources=%d", res.RunID, len(a.Catalog.Sources))

	var vectors []scorer.ScoreVector
	res.Sources, vectors = a.collect(ctx)
	// 整轮被取消（Ctrl-C / 请求方断开）不等于数据源失败，不能把全 0 写进文档
	if err := ctx.Err(); err != nil {
		metrics.ObserveRun(false)
		return nil, fmt.Errorf("aggregate: run %s aborted: %w", res.RunID, err)
	}

	res.Aggregate = processor.Sum(vectors...)
	res.Percentages = processor.Normalize(a.Catalog.Keys(), res.Aggregate)
	res.Date = config.Today(a.now(), a.Location)

	if opts.DryRun {
		doc, err := a.Store.Load()
		if err == nil {
			err = processor.ValidateOrder(doc, res.Names)
			var le *storage.DocumentLoadError
			if errors.As(err, &le) {
				le.Path = a.Store.Path()
			}
		}
		if err != nil {
			return nil, err
		}
		log.Printf("dry run, %s not written: %s", a.Store.Path(), formatPercentages(res.Names, res.Percentages))
		return res, nil
	}

	doc, err := a.Store.Update(func(doc *storage.Document) error {
		return processor.Merge(doc, res.Names, res.Percentages, res.Date)
	})
	if err != nil {
		metrics.ObserveRun(false)
		return nil, err
	}
	metrics.ObserveRun(true)
	metrics.SetPercentages(res.Names, res.Percentages, float64(a.now().Unix()))

	a.afterWrite(ctx, res.RunID, doc.History[len(doc.History)-1])

	log.Printf("updated %s with %s", a.Store.Path(), formatPercentages(res.Names, res.Percentages))
	return res, nil
}

// collect 并发抓取所有数据源：每个源独立超时，结果先按下标收集，等全部结束后再统一汇总
func (a *Aggregator) collect(ctx context.Context) ([]SourceResult, []scorer.ScoreVector) {
	sources := a.Catalog.Sources
	results := make([]SourceResult, len(sources))
	scores := make([]scorer.ScoreVector, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src config.Source) {
			defer wg.Done()
			results[i].Source = src.Name
			log.Printf("fetch %s...", src.Name)

			fctx, cancel := context.WithTimeout(ctx, a.timeout())
			defer cancel()

			text, err := a.Fetcher.Fetch(fctx, src)
			if err != nil {
				log.Printf("fetch %s error: %v", src.Name, err)
				results[i].Error = err.Error()
				metrics.ObserveFetch(src.Name, false)
				return
			}
			metrics.ObserveFetch(src.Name, true)

			results[i].Bytes = len(text)
			if a.TextMode == config.TextModeReadable {
				if readable, err := collector.ExtractReadable(text, src.URL); err == nil {
					text = readable
				} else {
					log.Printf("warn: %s readable extraction failed, scoring raw body: %v", src.Name, err)
				}
			}

			v := a.Scorer.Score(text)
			scores[i] = v
			results[i].Hits = v.Total()
			log.Printf("%s done, bytes=%s hits=%d", src.Name, humanize.Bytes(uint64(results[i].Bytes)), results[i].Hits)
		}(i, src)
	}
	wg.Wait()

	ok := make([]scorer.ScoreVector, 0, len(scores))
	for _, v := range scores {
		if v != nil {
			ok = append(ok, v)
		}
	}
	log.Printf("collect done, ok=%d failed=%d", len(ok), len(sources)-len(ok))
	return results, ok
}

func (a *Aggregator) timeout() time.Duration {
	if a.Timeout <= 0 {
		return 20 * time.Second
	}
	return a.Timeout
}

// afterWrite 文档写入成功后的附带动作，失败只记录日志
func (a *Aggregator) afterWrite(ctx context.Context, runID string, entry storage.HistoryEntry) {
	if a.Mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := a.Mirror.SaveEntry(mctx, runID, entry); err != nil {
			log.Printf("warn: mirror history entry failed: %v", err)
		}
		cancel()
	}
	a.Cache.Invalidate(ctx)
}

func formatPercentages(names []string, pct []int) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%d", n, pct[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
