package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"shopify_sync_v1_202608/internal/repository"
	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 结果对账 ====================

// 对账写库并发度，库连接池为此留了余量
const reconcileConcurrency = 25

// ReconcileStats 一次对账的汇总
type ReconcileStats struct {
	mu        sync.Mutex
	Committed int
	Failed    int
	Throttled int
	Missing   int // 行号映射不到本地资产
}

func (s *ReconcileStats) add(f func(*ReconcileStats)) {
	s.mu.Lock()
	f(s)
	s.mu.Unlock()
}

// ReconcileService 把批量结果行写回本地资产
// 行级失败只计数不中断：一行写库挂了不能拖垮整批
type ReconcileService struct {
	assets   repository.AssetRepository
	variants repository.VariantRepository
	log      zerolog.Logger
}

func NewReconcileService(assets repository.AssetRepository, variants repository.VariantRepository, log zerolog.Logger) *ReconcileService {
	return &ReconcileService{assets: assets, variants: variants, log: log}
}

// CommitProduct 恰好一次的落库规则：
// 商品 id + 变体按位置 0..min(本地,远端) 配对，一次事务性状态翻转
// 远端多出的变体忽略，本地多出的保持未同步
func (s *ReconcileService) CommitProduct(ctx context.Context, assetID, productGID string, remote []shopify.BulkVariant) error {
	productID := shopify.GIDToID(productGID)
	if productID == 0 {
		return fmt.Errorf("无法解析商品 gid: %s", productGID)
	}

	local, err := s.variants.ListByAssetID(ctx, assetID)
	if err != nil {
		return err
	}
	n := len(local)
	if len(remote) < n {
		n = len(remote)
	}
	for i := 0; i < n; i++ {
		price, _ := PriceFor(&local[i])
		fields := map[string]interface{}{
			"shopify_variant_id":  shopify.GIDToID(remote[i].ID),
			"shopify_variant_gid": remote[i].ID,
			"base_price":          price,
		}
		if err := s.variants.UpdateFields(ctx, local[i].ID, fields); err != nil {
			return fmt.Errorf("写回变体 %s 失败: %w", local[i].ID, err)
		}
	}

	// synced 与 ingestion_status=ready 必须一起落，半截状态会让下游重复拣货
	return s.assets.MarkSynced(ctx, assetID, productID, productGID, time.Now().UTC())
}

// ReconcileBatch 按位置映射对账：结果行号 k 对应本批第 k 个投影资产
func (s *ReconcileService) ReconcileBatch(ctx context.Context, set *shopify.BulkResultSet, orderedAssetIDs []string) *ReconcileStats {
	return s.reconcile(ctx, set, func(line int) (string, bool) {
		if line < 0 || line >= len(orderedAssetIDs) {
			return "", false
		}
		return orderedAssetIDs[line], true
	})
}

// ReconcileFromArtifact 漂移恢复：pending 集合可能已变，
// 以保存的批次文件为准——先整体复位涉及的资产，再按行回放结果
func (s *ReconcileService) ReconcileFromArtifact(ctx context.Context, set *shopify.BulkResultSet, driveFileIDs []string) (*ReconcileStats, error) {
	if err := s.assets.ResetShopifyByDriveFileIDs(ctx, driveFileIDs); err != nil {
		return nil, fmt.Errorf("复位批次资产失败: %w", err)
	}
	assets, err := s.assets.GetByDriveFileIDs(ctx, driveFileIDs)
	if err != nil {
		return nil, err
	}
	byDrive := make(map[string]string, len(assets))
	for i := range assets {
		byDrive[assets[i].DriveFileID] = assets[i].ID
	}

	stats := s.reconcile(ctx, set, func(line int) (string, bool) {
		if line < 0 || line >= len(driveFileIDs) {
			return "", false
		}
		id, ok := byDrive[driveFileIDs[line]]
		return id, ok
	})
	return stats, nil
}

func (s *ReconcileService) reconcile(ctx context.Context, set *shopify.BulkResultSet, resolve func(int) (string, bool)) *ReconcileStats {
	stats := &ReconcileStats{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)

	for i := range set.Products {
		res := &set.Products[i]
		assetID, ok := resolve(res.LineNumber)
		if !ok {
			s.log.Warn().Int("line", res.LineNumber).Msg("结果行号映射不到本地资产")
			stats.add(func(st *ReconcileStats) { st.Missing++ })
			continue
		}
		g.Go(func() error {
			switch {
			case res.Throttled:
				// 被配额拒绝的资产保持 pending，明天自然重试
				stats.add(func(st *ReconcileStats) { st.Throttled++ })

			case res.Succeeded():
				if err := s.CommitProduct(ctx, assetID, res.ProductID, set.VariantsFor(res)); err != nil {
					s.log.Error().Err(err).Str("asset_id", assetID).Msg("对账写库失败")
					stats.add(func(st *ReconcileStats) { st.Failed++ })
					return nil
				}
				stats.add(func(st *ReconcileStats) { st.Committed++ })

			default:
				if err := s.assets.MarkError(ctx, assetID, res.ErrorText()); err != nil {
					s.log.Error().Err(err).Str("asset_id", assetID).Msg("回写错误状态失败")
				}
				stats.add(func(st *ReconcileStats) { st.Failed++ })
			}
			return nil
		})
	}
	_ = g.Wait()

	if stats.Missing > 0 && stats.Missing == len(set.Products) {
		s.log.Error().Msg("整批结果都映射失败，疑似用错了批次文件")
	}
	return stats
}
