package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/internal/repository"
)

// ==================== 变体配额 ====================

// QuotaService 当日变体创建预算
// 远端按 UTC 日历日限制新建变体数（开发店 1000/天，留 100 余量默认 900）
// 预算 = 上限 − 今天已同步变体数 − 本次运行内已消费数
type QuotaService struct {
	variants repository.VariantRepository
	limit    int
	log      zerolog.Logger

	mu          sync.Mutex
	usedAtStart int64
	consumed    int
}

func NewQuotaService(variants repository.VariantRepository, limit int, log zerolog.Logger) *QuotaService {
	return &QuotaService{variants: variants, limit: limit, log: log}
}

// Refresh 从库里重算今天已用额度（UTC 零点起）
// 每次运行开始时调，防止跨进程重复计费
func (q *QuotaService) Refresh(ctx context.Context) error {
	since := time.Now().UTC().Truncate(24 * time.Hour)
	used, err := q.variants.CountSyncedSince(ctx, since)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.usedAtStart = used
	q.consumed = 0
	q.mu.Unlock()
	q.log.Info().Int64("used_today", used).Int("limit", q.limit).Msg("刷新变体配额")
	return nil
}

// Remaining 剩余可建变体数，最低 0
func (q *QuotaService) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.limit - int(q.usedAtStart) - q.consumed
	if rest < 0 {
		return 0
	}
	return rest
}

// Consume 登记本次运行内新建的变体数
func (q *QuotaService) Consume(n int) {
	q.mu.Lock()
	q.consumed += n
	q.mu.Unlock()
}

// Allow n 个变体是否还在预算内
func (q *QuotaService) Allow(n int) bool {
	return n <= q.Remaining()
}
