package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/internal/repository"
)

// ==================== 配额测试 ====================

func TestQuota_RefreshCountsToday(t *testing.T) {
	db := setupServiceTestDB(t)
	variants := repository.NewVariantRepository(db)
	ctx := context.Background()

	today := time.Now().UTC()
	yesterday := today.Add(-25 * time.Hour)

	a1 := &model.Asset{DriveFileID: "d1", ShopifyStatus: model.SyncStatusSynced, ShopifySyncedAt: &today}
	a2 := &model.Asset{DriveFileID: "d2", ShopifyStatus: model.SyncStatusSynced, ShopifySyncedAt: &yesterday}
	mustCreate(t, db, a1)
	mustCreate(t, db, a2)
	mustCreate(t, db, &model.Variant{AssetID: a1.ID, Label: "a", WidthCM: 30, HeightCM: 40, ShopifyVariantID: 1})
	mustCreate(t, db, &model.Variant{AssetID: a1.ID, Label: "b", WidthCM: 50, HeightCM: 70, ShopifyVariantID: 2})
	// 昨天的不占今天的额度
	mustCreate(t, db, &model.Variant{AssetID: a2.ID, Label: "c", WidthCM: 30, HeightCM: 40, ShopifyVariantID: 3})

	quota := NewQuotaService(variants, 10, zerolog.Nop())
	if err := quota.Refresh(ctx); err != nil {
		t.Fatalf("Refresh 失败: %v", err)
	}
	if got := quota.Remaining(); got != 8 {
		t.Errorf("Remaining = %d, want 8", got)
	}
}

func TestQuota_ConsumeAndAllow(t *testing.T) {
	db := setupServiceTestDB(t)
	quota := NewQuotaService(repository.NewVariantRepository(db), 5, zerolog.Nop())
	if err := quota.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh 失败: %v", err)
	}

	if !quota.Allow(5) {
		t.Error("预算内应放行")
	}
	quota.Consume(3)
	if quota.Remaining() != 2 {
		t.Errorf("Remaining = %d, want 2", quota.Remaining())
	}
	if quota.Allow(3) {
		t.Error("超预算应拒绝")
	}
	quota.Consume(4) // 超扣不会出现负数
	if quota.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", quota.Remaining())
	}
}
