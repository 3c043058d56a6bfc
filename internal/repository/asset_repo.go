package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"shopify_sync_v1_202608/internal/model"
)

// 分页与分块上限：元数据库单次查询结果上限 1000，IN 子句 id 上限 200
const (
	pendingPageSize  = 1000
	idChunkSize      = 200
	resetChunkSize   = 200
	driveIDChunkSize = 200
)

// ==================== 接口定义 ====================

// AssetRepository 资产仓储接口
// 核心只改写 shopify_* 列与 ingestion_status=ready，其余列不碰
type AssetRepository interface {
	GetByID(ctx context.Context, id string) (*model.Asset, error)
	GetByDriveFileIDs(ctx context.Context, driveFileIDs []string) ([]model.Asset, error)

	// 队列查询
	// ListPendingByArtist: 逐条同步顺序（artist asc, created_at asc）
	// ListPendingOrdered:  批量同步顺序（created_at asc, id asc），内部按 1000 分页
	ListPendingByArtist(ctx context.Context, limit int) ([]model.Asset, error)
	ListPendingOrdered(ctx context.Context, limit int) ([]model.Asset, error)
	ListSynced(ctx context.Context, limit int) ([]model.Asset, error)

	// 同步状态写入
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	MarkSynced(ctx context.Context, id string, productID int64, productGID string, syncedAt time.Time) error
	MarkError(ctx context.Context, id string, message string) error
	ClearRemoteIdentity(ctx context.Context, id string) error

	// 批量重置：漂移恢复先清后写
	ResetShopifyByDriveFileIDs(ctx context.Context, driveFileIDs []string) error
	ResetErrors(ctx context.Context) (int64, error)

	// 统计
	CountByStatus(ctx context.Context) (map[model.SyncStatus]int64, error)
}

// ==================== 仓储实现 ====================

type assetRepo struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepo{db: db}
}

func (r *assetRepo) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) GetByDriveFileIDs(ctx context.Context, driveFileIDs []string) ([]model.Asset, error) {
	var assets []model.Asset
	for _, chunk := range chunkStrings(driveFileIDs, driveIDChunkSize) {
		var page []model.Asset
		if err := r.db.WithContext(ctx).
			Where("drive_file_id IN ?", chunk).
			Find(&page).Error; err != nil {
			return nil, err
		}
		assets = append(assets, page...)
	}
	return assets, nil
}

func (r *assetRepo) ListPendingByArtist(ctx context.Context, limit int) ([]model.Asset, error) {
	var assets []model.Asset
	err := r.db.WithContext(ctx).
		Where("shopify_status = ?", model.SyncStatusPending).
		Order("artist ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}

func (r *assetRepo) ListPendingOrdered(ctx context.Context, limit int) ([]model.Asset, error) {
	var assets []model.Asset

	// 分页拉取，绕开查询结果上限；以 (created_at, id) 为确定性顺序
	offset := 0
	for len(assets) < limit {
		page := pendingPageSize
		if remaining := limit - len(assets); remaining < page {
			page = remaining
		}

		var batch []model.Asset
		err := r.db.WithContext(ctx).
			Where("shopify_status = ?", model.SyncStatusPending).
			Order("created_at ASC").
			Order("id ASC").
			Limit(page).
			Offset(offset).
			Find(&batch).Error
		if err != nil {
			return nil, err
		}

		assets = append(assets, batch...)
		if len(batch) < page {
			break
		}
		offset += len(batch)
	}

	return assets, nil
}

func (r *assetRepo) ListSynced(ctx context.Context, limit int) ([]model.Asset, error) {
	var assets []model.Asset
	err := r.db.WithContext(ctx).
		Where("shopify_status = ?", model.SyncStatusSynced).
		Order("shopify_synced_at ASC").
		Limit(limit).
		Find(&assets).Error
	return assets, err
}

func (r *assetRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Asset{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *assetRepo) MarkSynced(ctx context.Context, id string, productID int64, productGID string, syncedAt time.Time) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"shopify_status":      model.SyncStatusSynced,
		"shopify_product_id":  productID,
		"shopify_product_gid": productGID,
		"shopify_synced_at":   syncedAt,
		"shopify_error":       "",
		// ingestion_status=ready 只随 synced 一起写入，从不单独设置
		"ingestion_status": model.IngestionStatusReady,
	})
}

func (r *assetRepo) MarkError(ctx context.Context, id string, message string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"shopify_status": model.SyncStatusError,
		"shopify_error":  truncate(message, 500),
	})
}

func (r *assetRepo) ClearRemoteIdentity(ctx context.Context, id string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"shopify_status":      model.SyncStatusPending,
		"shopify_product_id":  0,
		"shopify_product_gid": "",
		"shopify_synced_at":   nil,
	})
}

func (r *assetRepo) ResetShopifyByDriveFileIDs(ctx context.Context, driveFileIDs []string) error {
	for _, chunk := range chunkStrings(driveFileIDs, resetChunkSize) {
		err := r.db.WithContext(ctx).
			Model(&model.Asset{}).
			Where("drive_file_id IN ?", chunk).
			Updates(map[string]interface{}{
				"shopify_status":      model.SyncStatusPending,
				"shopify_product_id":  0,
				"shopify_product_gid": "",
				"shopify_synced_at":   nil,
				"shopify_error":       "",
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *assetRepo) ResetErrors(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Asset{}).
		Where("shopify_status = ?", model.SyncStatusError).
		Updates(map[string]interface{}{
			"shopify_status": model.SyncStatusPending,
			"shopify_error":  "",
		})
	return result.RowsAffected, result.Error
}

func (r *assetRepo) CountByStatus(ctx context.Context) (map[model.SyncStatus]int64, error) {
	type row struct {
		ShopifyStatus model.SyncStatus
		Count         int64
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.Asset{}).
		Select("shopify_status, COUNT(*) as count").
		Group("shopify_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[model.SyncStatus]int64)
	for _, r := range rows {
		stats[r.ShopifyStatus] = r.Count
	}
	return stats, nil
}

// ==================== 工具函数 ====================

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = idChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// truncate 按字符数截断，不能在多字节字符中间切开
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
