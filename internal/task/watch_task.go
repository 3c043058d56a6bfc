package task

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/internal/service"
)

// ==================== WatchTask 定时批量同步 ====================

// WatchTask 按 cron 表达式周期性跑批量同步
// 同一时刻只允许一轮在跑：上一轮没结束就跳过本次触发
type WatchTask struct {
	bulk *service.BulkSyncService
	spec string
	opts service.BulkRunOptions
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
}

func NewWatchTask(bulk *service.BulkSyncService, spec string, opts service.BulkRunOptions, log zerolog.Logger) *WatchTask {
	return &WatchTask{
		bulk: bulk,
		spec: spec,
		opts: opts,
		cron: cron.New(cron.WithSeconds()),
		log:  log,
	}
}

// Start 启动定时任务，先立刻跑一轮再进入周期
func (t *WatchTask) Start() error {
	_, err := t.cron.AddFunc(t.spec, func() {
		t.execute()
	})
	if err != nil {
		return err
	}

	t.cron.Start()
	t.log.Info().Str("cron", t.spec).Msg("watch 模式已启动")

	// 启动即执行一轮，不用干等到下个触发点
	go t.execute()
	return nil
}

// Stop 停止任务，等在跑的那轮收尾
func (t *WatchTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info().Msg("watch 模式已停止")
}

// execute 执行一轮批量同步
func (t *WatchTask) execute() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.log.Warn().Msg("上一轮批量同步还在跑，跳过本次触发")
		return
	}
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	// 一整轮（多批 + 轮询）可能横跨数小时
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
	defer cancel()

	report, err := t.bulk.Run(ctx, t.opts)
	if err != nil {
		t.log.Error().Err(err).Msg("定时批量同步失败")
		return
	}
	t.log.Info().
		Str("status", string(report.Status)).
		Int("batches", report.Batches).
		Int("committed", report.Committed).
		Int("failed", report.Failed).
		Int("throttled", report.Throttled).
		Msg("定时批量同步完成")
}
