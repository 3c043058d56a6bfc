package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ==================== 同步状态 ====================

// SyncStatus 资产对 Shopify 的同步状态
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// 画质档位（上游打标服务产出）
const (
	QualityTierHigh     = "high"
	QualityTierStandard = "standard"
)

// IngestionStatus 入库流水线状态（核心只写 ready）
const (
	IngestionStatusTagged   = "tagged"
	IngestionStatusAnalyzed = "analyzed"
	IngestionStatusReady    = "ready"
)

// ==================== Asset ====================

// Asset 一幅作品，独立于商城平台的源记录
// 核心只拥有 shopify_* 列与 ingestion_status = ready 的写入权，
// 描述性字段（ai_tags/style/era/...）由上游打标服务填充，这里只读
type Asset struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// --- 外部稳定标识 ---
	DriveFileID string `gorm:"size:128;uniqueIndex;not null"` // 漂移恢复的稳定键
	Filename    string `gorm:"size:255"`

	// --- 作品描述 ---
	Title            string  `gorm:"size:255"`
	Artist           string  `gorm:"size:255;index"`
	RatioClass       string  `gorm:"size:32"`
	QualityTier      string  `gorm:"size:32"` // high / standard
	AspectRatio      float64 `gorm:"default:0"`
	MaxPrintWidthCM  float64 `gorm:"default:0"`
	MaxPrintHeightCM float64 `gorm:"default:0"`

	// --- AI 打标结果（只读输入） ---
	AITags  pq.StringArray `gorm:"type:text[]"`
	Style   string         `gorm:"size:64"`
	Era     string         `gorm:"size:64"`
	Mood    string         `gorm:"size:64"`
	Subject string         `gorm:"size:64"`
	Palette pq.StringArray `gorm:"type:text[]"`

	// --- Shopify 同步字段（核心拥有） ---
	ShopifyStatus     SyncStatus `gorm:"size:20;default:pending;index:idx_assets_shopify_status"`
	ShopifyProductID  int64      `gorm:"default:0;index"`
	ShopifyProductGID string     `gorm:"column:shopify_product_gid;size:128"`
	ShopifySyncedAt   *time.Time
	ShopifyError      string `gorm:"size:500"` // 终态错误信息，截断 500 字符

	// --- 入库流水线 ---
	IngestionStatus string `gorm:"size:32;index"`
	IngestionError  string `gorm:"size:500"`

	// --- 关联 ---
	Variants []Variant `gorm:"foreignKey:AssetID"`
}

func (Asset) TableName() string {
	return "assets"
}

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// ==================== Variant ====================

// Variant 资产的一个可售尺寸
// 同一资产内以 width_cm 升序为规范投影顺序
type Variant struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	AssetID string `gorm:"type:uuid;index;not null"`
	Label   string `gorm:"size:64;not null"` // 如 "30x40 cm"

	WidthCM  float64 `gorm:"not null"`
	HeightCM float64 `gorm:"not null"`

	// --- Shopify 身份 ---
	ShopifyVariantID  int64  `gorm:"default:0;index"`
	ShopifyVariantGID string `gorm:"column:shopify_variant_gid;size:128"`

	BasePrice float64 `gorm:"default:0"`
}

func (Variant) TableName() string {
	return "variants"
}

func (v *Variant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// AreaCM2 打印面积，价格档位的唯一输入
func (v *Variant) AreaCM2() float64 {
	return v.WidthCM * v.HeightCM
}
