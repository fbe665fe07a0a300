package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/AIUsageHub/internal/aggregator"
)

// ErrBusy 已有一轮采集在执行
var ErrBusy = errors.New("aggregate run already in progress")

// 定时任务单轮的整体上限，防止某次运行卡住后续调度
// RunDeadline 单轮采集的最长耗时，定时任务与手动触发共用
const RunDeadline = 10 * time.Minute

type Scheduler struct {
	cron *cron.Cron
	agg  *aggregator.Aggregator

	// 同一进程内的互斥；跨进程由文档锁文件保证
	mu sync.Mutex
}

// New spec 为空时不注册定时任务，只能通过 RunOnce 手动触发
func New(spec string, agg *aggregator.Aggregator) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	s := &Scheduler{
		cron: c,
		agg:  agg,
	}

	if spec != "" {
		if _, err := c.AddFunc(spec, s.runScheduled); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Cron 暴露底层 cron，便于追加其它定时任务
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

// RunOnce 对外暴露的单次执行入口，方便手动触发采集；与定时任务互斥
func (s *Scheduler) RunOnce(ctx context.Context, opts aggregator.RunOptions) (*aggregator.Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	return s.agg.Run(ctx, opts)
}

func (s *Scheduler) runScheduled() {
	log.Println("start scheduled aggregate job...")

	ctx, cancel := context.WithTimeout(context.Background(), RunDeadline)
	defer cancel()

	res, err := s.RunOnce(ctx, aggregator.RunOptions{})
	if err != nil {
		log.Printf("scheduled aggregate job error: %v", err)
		return
	}
	log.Printf("scheduled aggregate job done, run=%s failed_sources=%d", res.RunID, res.Failed())
}
