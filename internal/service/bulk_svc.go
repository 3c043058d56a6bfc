package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/internal/config"
	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/internal/repository"
	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 批量同步 ====================

// 单批被限流的行占比超过一半就停止后续批次：
// 当日配额显然见底了，再推只是白烧上传带宽
const throttleStopRatio = 0.5

// BulkRunOptions 一次批量运行的开关
type BulkRunOptions struct {
	DryRun            bool // 只构建第一批 JSONL，不上传
	MaxBatches        int  // 0 表示不限
	Active            bool // 商品直接上架（默认 DRAFT）
	EnsureCollections bool // 提交前先保证画家集合存在
}

// BulkRunReport 运行汇总，命令层据此定退出码
type BulkRunReport struct {
	RunID     string
	Status    model.RunStatus
	Batches   int
	Projected int
	Skipped   int // 零规格资产
	Committed int
	Failed    int
	Throttled int
}

// BulkSyncService 四阶段批量管道：
// A 投影+构建 JSONL → B 暂存上传 → C 启动批量变更 → D 轮询+对账
type BulkSyncService struct {
	cfg         *config.Config
	client      *shopify.Client
	assets      repository.AssetRepository
	variants    repository.VariantRepository
	runs        repository.PipelineRunRepository
	quota       *QuotaService
	reconciler  *ReconcileService
	artifacts   *ArtifactStore
	collections *CollectionService
	log         zerolog.Logger
}

func NewBulkSyncService(
	cfg *config.Config,
	client *shopify.Client,
	assets repository.AssetRepository,
	variants repository.VariantRepository,
	runs repository.PipelineRunRepository,
	quota *QuotaService,
	reconciler *ReconcileService,
	artifacts *ArtifactStore,
	collections *CollectionService,
	log zerolog.Logger,
) *BulkSyncService {
	return &BulkSyncService{
		cfg:         cfg,
		client:      client,
		assets:      assets,
		variants:    variants,
		runs:        runs,
		quota:       quota,
		reconciler:  reconciler,
		artifacts:   artifacts,
		collections: collections,
		log:         log,
	}
}

// Run 跑到 pending 清空、配额耗尽或限流熔断为止
func (s *BulkSyncService) Run(ctx context.Context, opts BulkRunOptions) (*BulkRunReport, error) {
	if err := s.quota.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("刷新配额失败: %w", err)
	}

	run := &model.PipelineRun{RunType: model.RunTypeBulkSync, Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("登记运行记录失败: %w", err)
	}

	report := &BulkRunReport{RunID: run.ID, Status: model.RunStatusCompleted}
	err := s.runBatches(ctx, opts, report)

	finalStatus := report.Status
	if err != nil {
		finalStatus = model.RunStatusFailed
	}
	if ferr := s.runs.Finish(ctx, run.ID, finalStatus, report.Projected, report.Committed, report.Failed); ferr != nil {
		s.log.Error().Err(ferr).Msg("收尾运行记录失败")
	}
	report.Status = finalStatus
	if serr := s.runs.SaveReport(ctx, run.ID, report); serr != nil {
		s.log.Error().Err(serr).Msg("保存运行报告失败")
	}
	return report, err
}

func (s *BulkSyncService) runBatches(ctx context.Context, opts BulkRunOptions, report *BulkRunReport) error {
	for {
		if opts.MaxBatches > 0 && report.Batches >= opts.MaxBatches {
			return nil
		}

		// 批次边界重新查询 pending：上一批的对账已经改变了集合
		pending, err := s.assets.ListPendingOrdered(ctx, s.cfg.BulkBatchSize)
		if err != nil {
			return fmt.Errorf("查询待同步资产失败: %w", err)
		}
		if len(pending) == 0 {
			s.log.Info().Msg("没有待同步资产，批量运行结束")
			return nil
		}

		inputs, assetIDs, skipped, err := s.buildBatch(ctx, pending, opts.Active)
		if err != nil {
			return err
		}
		report.Skipped += skipped
		if len(inputs) == 0 {
			if s.quota.Remaining() == 0 {
				s.log.Warn().Int("pending", len(pending)).Msg("当日变体配额耗尽，剩余资产明天再推")
				return nil
			}
			s.log.Info().Msg("本批没有可投影资产")
			return nil
		}

		if opts.EnsureCollections && s.collections != nil {
			artists := make([]string, 0, len(inputs))
			for _, input := range inputs {
				artists = append(artists, input.Vendor)
			}
			if err := s.collections.EnsureArtistCollections(ctx, artists); err != nil {
				s.log.Warn().Err(err).Msg("画家集合预建失败，继续提交商品")
			}
		}

		batchNum, err := s.artifacts.NextBatchNumber()
		if err != nil {
			return err
		}
		path, err := s.artifacts.WriteBatch(batchNum, inputs)
		if err != nil {
			return err
		}
		s.log.Info().Int("batch", batchNum).Int("products", len(inputs)).Str("path", path).Msg("批次文件已落盘")

		if opts.DryRun {
			report.Batches++
			report.Projected += len(inputs)
			s.log.Info().Str("path", path).Msg("dry-run：跳过上传，直接结束")
			return nil
		}
		s.artifacts.Archive(ctx, path)

		set, err := s.submitAndCollect(ctx, batchNum, path)
		if err != nil {
			return err
		}

		// 远端接受的变体才计入当日配额
		consumed := 0
		for i := range set.Products {
			if set.Products[i].Succeeded() {
				consumed += len(set.VariantsFor(&set.Products[i]))
			}
		}
		s.quota.Consume(consumed)

		stats := s.reconciler.ReconcileBatch(ctx, set, assetIDs)
		report.Batches++
		report.Projected += len(inputs)
		report.Committed += stats.Committed
		report.Failed += stats.Failed + stats.Missing
		report.Throttled += stats.Throttled
		if stats.Failed+stats.Missing > 0 || stats.Throttled > 0 {
			report.Status = model.RunStatusCompletedWithErrors
		}

		s.log.Info().
			Int("batch", batchNum).
			Int("committed", stats.Committed).
			Int("failed", stats.Failed).
			Int("throttled", stats.Throttled).
			Msg("批次对账完成")

		if set.Throttled > 0 {
			s.log.Warn().Int("throttled", set.Throttled).Msg("批次出现配额限流行")
			if float64(set.Throttled) > throttleStopRatio*float64(len(set.Products)) {
				s.log.Warn().Msg("过半结果被配额拒绝，熔断后续批次")
				report.Status = model.RunStatusCompletedWithErrors
				return nil
			}
		}
	}
}

// buildBatch 阶段 A：投影 + 配额截断
// 截断只发生在资产边界，绝不让一个商品的变体跨批
func (s *BulkSyncService) buildBatch(ctx context.Context, pending []model.Asset, active bool) ([]*shopify.ProductInput, []string, int, error) {
	ids := make([]string, 0, len(pending))
	for i := range pending {
		ids = append(ids, pending[i].ID)
	}
	variantsByAsset, err := s.variants.MapByAssetIDs(ctx, ids)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("查询规格失败: %w", err)
	}

	budget := s.quota.Remaining()
	var (
		inputs   []*shopify.ProductInput
		assetIDs []string
		skipped  int
	)
	for i := range pending {
		asset := &pending[i]
		vars := variantsByAsset[asset.ID]
		input, ok := ProjectProduct(asset, vars, active)
		if !ok {
			skipped++
			s.log.Warn().Str("asset_id", asset.ID).Msg("资产没有可售规格，跳过")
			continue
		}
		if len(vars) > budget {
			s.log.Info().Int("budget", budget).Str("asset_id", asset.ID).Msg("配额余量不足，本批到此截断")
			break
		}
		budget -= len(vars)
		inputs = append(inputs, input)
		assetIDs = append(assetIDs, asset.ID)
	}
	return inputs, assetIDs, skipped, nil
}

// submitAndCollect 阶段 B/C/D：上传、启动、轮询、拉回结果
func (s *BulkSyncService) submitAndCollect(ctx context.Context, batchNum int, path string) (*shopify.BulkResultSet, error) {
	// 店铺级屏障：上一个批量变更没到终态前不能再启动
	if err := s.waitForIdle(ctx); err != nil {
		return nil, err
	}

	target, err := s.client.StagedUploadCreate(ctx, BatchFileName(batchNum))
	if err != nil {
		return nil, fmt.Errorf("申请暂存目标失败: %w", err)
	}
	if err := s.client.UploadStagedFile(ctx, target, path); err != nil {
		return nil, fmt.Errorf("上传批次文件失败: %w", err)
	}

	op, err := s.client.RunProductSetBulk(ctx, target.StagedPath())
	if err != nil {
		return nil, fmt.Errorf("启动批量变更失败: %w", err)
	}
	s.log.Info().Str("op_id", op.ID).Msg("批量变更已启动")

	op, err = s.pollUntilDone(ctx)
	if err != nil {
		return nil, err
	}
	if op.Status != shopify.BulkStatusCompleted {
		s.log.Error().Str("status", op.Status).Str("error_code", op.ErrorCode).Msg("批量变更异常终态")
	}
	resultURL := op.ResultURL()
	if resultURL == "" {
		return nil, fmt.Errorf("批量变更 %s 终态 %s 且没有结果文件", op.ID, op.Status)
	}

	return s.downloadAndParse(ctx, batchNum, resultURL)
}

func (s *BulkSyncService) downloadAndParse(ctx context.Context, batchNum int, url string) (*shopify.BulkResultSet, error) {
	// 结果文件同样落盘留底，命名避开批次编号的匹配规则
	resultPath := s.artifacts.BatchPath(batchNum) + ".results"
	f, err := os.Create(resultPath)
	if err != nil {
		return nil, fmt.Errorf("创建结果文件失败: %w", err)
	}
	if _, err := s.client.DownloadBulkResults(ctx, url, f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	rf, err := os.Open(resultPath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()
	return shopify.ParseBulkResults(rf)
}

// waitForIdle 轮询到店铺没有在跑的批量变更为止
func (s *BulkSyncService) waitForIdle(ctx context.Context) error {
	for {
		op, err := s.client.CurrentBulkOperation(ctx)
		if err != nil {
			return fmt.Errorf("查询批量操作状态失败: %w", err)
		}
		if op == nil || op.Done() {
			return nil
		}
		s.log.Info().Str("op_id", op.ID).Str("status", op.Status).Msg("等待上一个批量变更结束")
		if err := sleepFor(ctx, s.cfg.BulkPollInterval); err != nil {
			return err
		}
	}
}

// pollUntilDone 轮询当前批量变更到终态
func (s *BulkSyncService) pollUntilDone(ctx context.Context) (*shopify.BulkOperation, error) {
	for {
		if err := sleepFor(ctx, s.cfg.BulkPollInterval); err != nil {
			return nil, err
		}
		op, err := s.client.CurrentBulkOperation(ctx)
		if err != nil {
			return nil, fmt.Errorf("轮询批量操作失败: %w", err)
		}
		if op == nil {
			return nil, fmt.Errorf("远端丢失了批量操作句柄")
		}
		if op.Done() {
			return op, nil
		}
		s.log.Debug().Str("status", op.Status).Str("objects", op.ObjectCount).Msg("批量变更进行中")
	}
}

// Status 当前（或最近一次）批量操作，给 --status 用
func (s *BulkSyncService) Status(ctx context.Context) (*shopify.BulkOperation, error) {
	return s.client.CurrentBulkOperation(ctx)
}

// ReconcileArtifact 崩溃恢复：进程死在对账前时，
// 用保存的批次文件 + 远端最近一次结果重放对账
func (s *BulkSyncService) ReconcileArtifact(ctx context.Context, path string) (*ReconcileStats, error) {
	op, err := s.client.CurrentBulkOperation(ctx)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("远端没有可回放的批量操作")
	}
	if !op.Done() {
		return nil, fmt.Errorf("批量操作 %s 仍在 %s，等它到终态再对账", op.ID, op.Status)
	}
	resultURL := op.ResultURL()
	if resultURL == "" {
		return nil, fmt.Errorf("批量操作 %s 没有结果文件", op.ID)
	}

	driveIDs, err := s.artifacts.ReadBatchDriveIDs(path)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "bulk-results-*.jsonl")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := s.client.DownloadBulkResults(ctx, resultURL, tmp); err != nil {
		tmp.Close()
		return nil, err
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		tmp.Close()
		return nil, err
	}
	set, err := shopify.ParseBulkResults(tmp)
	tmp.Close()
	if err != nil {
		return nil, err
	}

	run := &model.PipelineRun{RunType: model.RunTypeReconcile, Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	stats, err := s.reconciler.ReconcileFromArtifact(ctx, set, driveIDs)
	status := model.RunStatusCompleted
	total, processed, failed := len(set.Products), 0, 0
	if stats != nil {
		processed, failed = stats.Committed, stats.Failed+stats.Missing
		if failed > 0 {
			status = model.RunStatusCompletedWithErrors
		}
	}
	if err != nil {
		status = model.RunStatusFailed
	}
	if ferr := s.runs.Finish(ctx, run.ID, status, total, processed, failed); ferr != nil {
		s.log.Error().Err(ferr).Msg("收尾对账记录失败")
	}
	if stats != nil {
		if serr := s.runs.SaveReport(ctx, run.ID, stats); serr != nil {
			s.log.Error().Err(serr).Msg("保存对账报告失败")
		}
	}
	return stats, err
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
