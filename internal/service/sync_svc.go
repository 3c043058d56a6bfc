package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/internal/config"
	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/internal/repository"
	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 逐条同步 ====================

// SyncOptions 逐条运行的开关
type SyncOptions struct {
	Limit             int  // 本次最多处理多少资产，0 用默认
	Active            bool // 商品直接上架
	EnsureCollections bool // 同步后保证画家集合存在
}

const defaultSyncLimit = 200

// SyncReport 逐条运行汇总
type SyncReport struct {
	RunID     string
	Status    model.RunStatus
	Processed int
	Committed int
	Failed    int
	Skipped   int
	QuotaStop bool
}

// SyncService 保守的逐条 REST 路径：小队列、冷启动、害怕批量协议时用
// 每个资产一次往返，429/5xx 在传输层重试，这里只看得到终态
type SyncService struct {
	cfg         *config.Config
	client      *shopify.Client
	assets      repository.AssetRepository
	variants    repository.VariantRepository
	runs        repository.PipelineRunRepository
	quota       *QuotaService
	reconciler  *ReconcileService
	collections *CollectionService
	log         zerolog.Logger
}

func NewSyncService(
	cfg *config.Config,
	client *shopify.Client,
	assets repository.AssetRepository,
	variants repository.VariantRepository,
	runs repository.PipelineRunRepository,
	quota *QuotaService,
	reconciler *ReconcileService,
	collections *CollectionService,
	log zerolog.Logger,
) *SyncService {
	return &SyncService{
		cfg:         cfg,
		client:      client,
		assets:      assets,
		variants:    variants,
		runs:        runs,
		quota:       quota,
		reconciler:  reconciler,
		collections: collections,
		log:         log,
	}
}

// Run 按画家分组的稳定顺序逐条推送
func (s *SyncService) Run(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultSyncLimit
	}
	if err := s.quota.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("刷新配额失败: %w", err)
	}

	pending, err := s.assets.ListPendingByArtist(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("查询待同步资产失败: %w", err)
	}

	run := &model.PipelineRun{RunType: model.RunTypeSync, Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("登记运行记录失败: %w", err)
	}

	report := &SyncReport{RunID: run.ID, Status: model.RunStatusCompleted}
	s.syncAssets(ctx, pending, opts, report)

	if report.Failed > 0 || report.QuotaStop {
		report.Status = model.RunStatusCompletedWithErrors
	}
	if ferr := s.runs.Finish(ctx, run.ID, report.Status, len(pending), report.Committed, report.Failed); ferr != nil {
		s.log.Error().Err(ferr).Msg("收尾运行记录失败")
	}
	if serr := s.runs.SaveReport(ctx, run.ID, report); serr != nil {
		s.log.Error().Err(serr).Msg("保存运行报告失败")
	}
	return report, nil
}

func (s *SyncService) syncAssets(ctx context.Context, pending []model.Asset, opts SyncOptions, report *SyncReport) {
	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		asset := &pending[i]

		vars, err := s.variants.ListByAssetID(ctx, asset.ID)
		if err != nil {
			s.log.Error().Err(err).Str("asset_id", asset.ID).Msg("查询规格失败")
			report.Failed++
			continue
		}
		input, ok := ProjectProduct(asset, vars, opts.Active)
		if !ok {
			s.log.Warn().Str("asset_id", asset.ID).Msg("资产没有可售规格，跳过")
			report.Skipped++
			continue
		}

		// 本地预算先行判断，省一次注定被拒的往返
		if !s.quota.Allow(len(vars)) {
			s.log.Warn().Int("remaining", s.quota.Remaining()).Msg("变体配额不足，停止本批")
			report.QuotaStop = true
			return
		}

		err = s.pushProduct(ctx, asset, input, len(vars))
		report.Processed++
		switch {
		case err == nil:
			report.Committed++
			if opts.EnsureCollections && s.collections != nil {
				if cerr := s.collections.EnsureArtistCollection(ctx, asset.Artist); cerr != nil {
					s.log.Warn().Err(cerr).Str("artist", asset.Artist).Msg("画家集合创建失败")
				}
			}

		case shopify.IsVariantQuota(err):
			// 远端已按日配额拒绝：资产保持 pending，停止本批
			s.log.Warn().Str("asset_id", asset.ID).Msg("远端变体配额命中，停止本批")
			report.QuotaStop = true
			return

		default:
			s.log.Error().Err(err).Str("asset_id", asset.ID).Msg("商品推送失败")
			if merr := s.assets.MarkError(ctx, asset.ID, err.Error()); merr != nil {
				s.log.Error().Err(merr).Str("asset_id", asset.ID).Msg("回写错误状态失败")
			}
			report.Failed++
		}

		if report.Processed%10 == 0 {
			if uerr := s.runs.UpdateProgress(ctx, report.RunID, report.Processed, report.Failed); uerr != nil {
				s.log.Warn().Err(uerr).Msg("更新运行进度失败")
			}
		}

		// 固定步频：传输层的令牌桶管突发，这里管平均节奏
		if i < len(pending)-1 {
			if serr := sleepFor(ctx, s.cfg.SyncPacer); serr != nil {
				return
			}
		}
	}
}

// pushProduct 单个资产的创建 + 落库
func (s *SyncService) pushProduct(ctx context.Context, asset *model.Asset, input *shopify.ProductInput, variantCount int) error {
	var resp shopify.RESTProductResp
	payload := map[string]any{"product": input.ToREST()}
	if err := s.client.Post(ctx, "products.json", payload, &resp); err != nil {
		return err
	}
	if resp.Product.ID == 0 {
		return fmt.Errorf("创建响应缺少商品 id")
	}

	productGID := resp.Product.AdminGID
	if productGID == "" {
		productGID = fmt.Sprintf("gid://shopify/Product/%d", resp.Product.ID)
	}
	remote := make([]shopify.BulkVariant, 0, len(resp.Product.Variants))
	for _, v := range resp.Product.Variants {
		gid := v.AdminGID
		if gid == "" {
			gid = fmt.Sprintf("gid://shopify/ProductVariant/%d", v.ID)
		}
		remote = append(remote, shopify.BulkVariant{ID: gid, Title: v.Title, SKU: v.SKU})
	}

	if err := s.reconciler.CommitProduct(ctx, asset.ID, productGID, remote); err != nil {
		return err
	}
	s.quota.Consume(variantCount)
	return nil
}

// ==================== 标签回推 ====================

// PushTags 把本地重算的标签推给已同步商品
// 404 说明远端商品被人删了：清掉本地身份，让资产回到 pending
func (s *SyncService) PushTags(ctx context.Context, limit int) (*SyncReport, error) {
	if limit <= 0 {
		limit = defaultSyncLimit
	}
	synced, err := s.assets.ListSynced(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Status: model.RunStatusCompleted}
	for i := range synced {
		asset := &synced[i]
		if asset.ShopifyProductID == 0 {
			continue
		}

		payload := map[string]any{"product": map[string]any{
			"id":   asset.ShopifyProductID,
			"tags": strings.Join(tagsFor(asset), ", "),
		}}
		err := s.client.Put(ctx, fmt.Sprintf("products/%d.json", asset.ShopifyProductID), payload, nil)
		report.Processed++
		switch {
		case err == nil:
			report.Committed++

		case shopify.IsNotFound(err):
			s.log.Warn().Str("asset_id", asset.ID).Int64("product_id", asset.ShopifyProductID).Msg("远端商品已不存在，资产回退 pending")
			if cerr := s.assets.ClearRemoteIdentity(ctx, asset.ID); cerr != nil {
				s.log.Error().Err(cerr).Str("asset_id", asset.ID).Msg("清除远端身份失败")
				report.Failed++
			}

		default:
			s.log.Error().Err(err).Str("asset_id", asset.ID).Msg("标签回推失败")
			report.Failed++
		}

		if i < len(synced)-1 {
			if serr := sleepFor(ctx, s.cfg.SyncPacer); serr != nil {
				break
			}
		}
	}
	if report.Failed > 0 {
		report.Status = model.RunStatusCompletedWithErrors
	}
	return report, nil
}
