package repository

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shopify_sync_v1_202608/internal/model"
)

// ==================== 测试辅助 ====================

func setupRepoTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	// 内存库只能走单连接，新连接会拿到一个空库
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Asset{}, &model.Variant{}, &model.PipelineRun{}); err != nil {
		t.Fatalf("建表失败: %v", err)
	}
	return db
}

func seedAsset(t *testing.T, db *gorm.DB, asset *model.Asset) *model.Asset {
	if err := db.Create(asset).Error; err != nil {
		t.Fatalf("插入资产失败: %v", err)
	}
	return asset
}

// ==================== 队列查询 ====================

func TestListPendingByArtist_Order(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedAsset(t, db, &model.Asset{DriveFileID: "d1", Artist: "Zola", CreatedAt: base})
	seedAsset(t, db, &model.Asset{DriveFileID: "d2", Artist: "Aalto", CreatedAt: base.Add(2 * time.Hour)})
	seedAsset(t, db, &model.Asset{DriveFileID: "d3", Artist: "Aalto", CreatedAt: base.Add(time.Hour)})
	seedAsset(t, db, &model.Asset{DriveFileID: "d4", Artist: "Moreau", CreatedAt: base, ShopifyStatus: model.SyncStatusSynced})

	assets, err := repo.ListPendingByArtist(ctx, 10)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("pending 数量 = %d, want 3", len(assets))
	}
	// 画家升序，同画家内创建时间升序
	wantOrder := []string{"d3", "d2", "d1"}
	for i, want := range wantOrder {
		if assets[i].DriveFileID != want {
			t.Errorf("assets[%d] = %s, want %s", i, assets[i].DriveFileID, want)
		}
	}
}

func TestListPendingOrdered_StableOrder(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedAsset(t, db, &model.Asset{DriveFileID: "late", CreatedAt: base.Add(time.Hour)})
	seedAsset(t, db, &model.Asset{DriveFileID: "early", CreatedAt: base})

	assets, err := repo.ListPendingOrdered(ctx, 10)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(assets) != 2 || assets[0].DriveFileID != "early" {
		t.Errorf("批量顺序必须按创建时间升序: %+v", assets)
	}

	// limit 截断
	assets, _ = repo.ListPendingOrdered(ctx, 1)
	if len(assets) != 1 {
		t.Errorf("limit 未生效: %d", len(assets))
	}
}

// ==================== 状态写入 ====================

func TestMarkSynced_FlipsStatusTogether(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	asset := seedAsset(t, db, &model.Asset{
		DriveFileID:     "d1",
		ShopifyStatus:   model.SyncStatusError,
		ShopifyError:    "old failure",
		IngestionStatus: model.IngestionStatusAnalyzed,
	})

	now := time.Now().UTC()
	if err := repo.MarkSynced(ctx, asset.ID, 123456, "gid://shopify/Product/123456", now); err != nil {
		t.Fatalf("MarkSynced 失败: %v", err)
	}

	got, _ := repo.GetByID(ctx, asset.ID)
	if got.ShopifyStatus != model.SyncStatusSynced {
		t.Errorf("status = %s", got.ShopifyStatus)
	}
	if got.ShopifyProductID != 123456 || got.ShopifyProductGID != "gid://shopify/Product/123456" {
		t.Errorf("远端身份未写入: %+v", got)
	}
	if got.ShopifyError != "" {
		t.Errorf("历史错误未清除: %q", got.ShopifyError)
	}
	// ready 只随 synced 一起落
	if got.IngestionStatus != model.IngestionStatusReady {
		t.Errorf("ingestion_status = %s, want ready", got.IngestionStatus)
	}
	if got.ShopifySyncedAt == nil {
		t.Error("synced_at 未写入")
	}
}

func TestMarkError_Truncates(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	asset := seedAsset(t, db, &model.Asset{DriveFileID: "d1"})
	long := strings.Repeat("x", 800)
	if err := repo.MarkError(ctx, asset.ID, long); err != nil {
		t.Fatalf("MarkError 失败: %v", err)
	}

	got, _ := repo.GetByID(ctx, asset.ID)
	if got.ShopifyStatus != model.SyncStatusError {
		t.Errorf("status = %s", got.ShopifyStatus)
	}
	if len(got.ShopifyError) != 500 {
		t.Errorf("错误信息长度 = %d, want 500", len(got.ShopifyError))
	}
}

// 截断按字符数算，多字节报文不能切出半个字符
func TestMarkError_TruncatesOnRuneBoundary(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	asset := seedAsset(t, db, &model.Asset{DriveFileID: "d1"})
	long := strings.Repeat("变体创建失败", 200) // 1200 字符
	if err := repo.MarkError(ctx, asset.ID, long); err != nil {
		t.Fatalf("MarkError 失败: %v", err)
	}

	got, _ := repo.GetByID(ctx, asset.ID)
	if !utf8.ValidString(got.ShopifyError) {
		t.Error("截断切开了多字节字符")
	}
	if n := len([]rune(got.ShopifyError)); n != 500 {
		t.Errorf("错误信息字符数 = %d, want 500", n)
	}
}

func TestClearRemoteIdentity(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	asset := seedAsset(t, db, &model.Asset{
		DriveFileID:       "d1",
		ShopifyStatus:     model.SyncStatusSynced,
		ShopifyProductID:  42,
		ShopifyProductGID: "gid://shopify/Product/42",
		ShopifySyncedAt:   &now,
	})

	if err := repo.ClearRemoteIdentity(ctx, asset.ID); err != nil {
		t.Fatalf("ClearRemoteIdentity 失败: %v", err)
	}

	got, _ := repo.GetByID(ctx, asset.ID)
	if got.ShopifyStatus != model.SyncStatusPending || got.ShopifyProductID != 0 || got.ShopifyProductGID != "" {
		t.Errorf("远端身份未清除: %+v", got)
	}
	if got.ShopifySyncedAt != nil {
		t.Error("synced_at 未清除")
	}
}

func TestResetShopifyByDriveFileIDs(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	a1 := seedAsset(t, db, &model.Asset{DriveFileID: "d1", ShopifyStatus: model.SyncStatusSynced, ShopifyProductID: 1})
	a2 := seedAsset(t, db, &model.Asset{DriveFileID: "d2", ShopifyStatus: model.SyncStatusError, ShopifyError: "boom"})
	a3 := seedAsset(t, db, &model.Asset{DriveFileID: "d3", ShopifyStatus: model.SyncStatusSynced, ShopifyProductID: 3})

	if err := repo.ResetShopifyByDriveFileIDs(ctx, []string{"d1", "d2"}); err != nil {
		t.Fatalf("重置失败: %v", err)
	}

	for _, id := range []string{a1.ID, a2.ID} {
		got, _ := repo.GetByID(ctx, id)
		if got.ShopifyStatus != model.SyncStatusPending || got.ShopifyProductID != 0 || got.ShopifyError != "" {
			t.Errorf("资产 %s 未复位: %+v", id, got)
		}
	}
	// 未列出的资产不受影响
	got, _ := repo.GetByID(ctx, a3.ID)
	if got.ShopifyStatus != model.SyncStatusSynced {
		t.Errorf("d3 不应被重置")
	}
}

func TestResetErrorsAndCountByStatus(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewAssetRepository(db)
	ctx := context.Background()

	seedAsset(t, db, &model.Asset{DriveFileID: "d1", ShopifyStatus: model.SyncStatusError, ShopifyError: "x"})
	seedAsset(t, db, &model.Asset{DriveFileID: "d2", ShopifyStatus: model.SyncStatusError, ShopifyError: "y"})
	seedAsset(t, db, &model.Asset{DriveFileID: "d3", ShopifyStatus: model.SyncStatusSynced})

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if counts[model.SyncStatusError] != 2 || counts[model.SyncStatusSynced] != 1 {
		t.Errorf("counts = %v", counts)
	}

	n, err := repo.ResetErrors(ctx)
	if err != nil {
		t.Fatalf("重置失败: %v", err)
	}
	if n != 2 {
		t.Errorf("重置行数 = %d, want 2", n)
	}

	counts, _ = repo.CountByStatus(ctx)
	if counts[model.SyncStatusPending] != 2 || counts[model.SyncStatusError] != 0 {
		t.Errorf("重置后 counts = %v", counts)
	}
}

// ==================== 变体仓储 ====================

func TestVariantRepo_OrderAndQuotaCount(t *testing.T) {
	db := setupRepoTestDB(t)
	variants := NewVariantRepository(db)
	ctx := context.Background()

	today := time.Now().UTC()
	yesterday := today.Add(-24 * time.Hour)

	a1 := seedAsset(t, db, &model.Asset{DriveFileID: "d1", ShopifyStatus: model.SyncStatusSynced, ShopifySyncedAt: &today})
	a2 := seedAsset(t, db, &model.Asset{DriveFileID: "d2", ShopifyStatus: model.SyncStatusSynced, ShopifySyncedAt: &yesterday})

	db.Create(&model.Variant{AssetID: a1.ID, Label: "50x70 cm", WidthCM: 50, HeightCM: 70, ShopifyVariantID: 2})
	db.Create(&model.Variant{AssetID: a1.ID, Label: "30x40 cm", WidthCM: 30, HeightCM: 40, ShopifyVariantID: 1})
	db.Create(&model.Variant{AssetID: a1.ID, Label: "70x100 cm", WidthCM: 70, HeightCM: 100}) // 未同步
	db.Create(&model.Variant{AssetID: a2.ID, Label: "30x40 cm", WidthCM: 30, HeightCM: 40, ShopifyVariantID: 9})

	// 宽度升序即投影顺序
	list, err := variants.ListByAssetID(ctx, a1.ID)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(list) != 3 || list[0].Label != "30x40 cm" || list[2].Label != "70x100 cm" {
		t.Errorf("顺序错乱: %+v", list)
	}

	grouped, err := variants.MapByAssetIDs(ctx, []string{a1.ID, a2.ID})
	if err != nil {
		t.Fatalf("分组查询失败: %v", err)
	}
	if len(grouped[a1.ID]) != 3 || len(grouped[a2.ID]) != 1 {
		t.Errorf("分组 = %d/%d", len(grouped[a1.ID]), len(grouped[a2.ID]))
	}

	// 今日配额用量：只数今天同步的资产下已有远端 id 的变体
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	count, err := variants.CountSyncedSince(ctx, midnight)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if count != 2 {
		t.Errorf("今日已用配额 = %d, want 2", count)
	}
}
