package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"shopify_sync_v1_202608/internal/model"
)

// ==================== 接口定义 ====================

// VariantRepository 变体仓储接口
// 所有列表查询均按 width_cm 升序返回，这是对远端的规范投影顺序
type VariantRepository interface {
	ListByAssetID(ctx context.Context, assetID string) ([]model.Variant, error)

	// ListByAssetIDs 按 asset id 分块（≤200）批量加载并按资产分组
	MapByAssetIDs(ctx context.Context, assetIDs []string) (map[string][]model.Variant, error)

	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error

	// CountSyncedSince 统计 since 之后随资产成功同步的变体数（当日配额用量）
	CountSyncedSince(ctx context.Context, since time.Time) (int64, error)
}

// ==================== 仓储实现 ====================

type variantRepo struct {
	db *gorm.DB
}

func NewVariantRepository(db *gorm.DB) VariantRepository {
	return &variantRepo{db: db}
}

func (r *variantRepo) ListByAssetID(ctx context.Context, assetID string) ([]model.Variant, error) {
	var variants []model.Variant
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("width_cm ASC").
		Find(&variants).Error
	return variants, err
}

func (r *variantRepo) MapByAssetIDs(ctx context.Context, assetIDs []string) (map[string][]model.Variant, error) {
	grouped := make(map[string][]model.Variant, len(assetIDs))

	for _, chunk := range chunkStrings(assetIDs, idChunkSize) {
		var variants []model.Variant
		err := r.db.WithContext(ctx).
			Where("asset_id IN ?", chunk).
			Order("width_cm ASC").
			Find(&variants).Error
		if err != nil {
			return nil, err
		}
		for _, v := range variants {
			grouped[v.AssetID] = append(grouped[v.AssetID], v)
		}
	}

	return grouped, nil
}

func (r *variantRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Variant{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *variantRepo) CountSyncedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Variant{}).
		Joins("JOIN assets ON assets.id = variants.asset_id").
		Where("variants.shopify_variant_id <> 0").
		Where("assets.shopify_synced_at >= ?", since).
		Count(&count).Error
	return count, err
}
