package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ==================== PipelineRun ====================

// RunStatus 流水线调用状态
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// RunType 调用类型
const (
	RunTypeSync      = "sync"
	RunTypeBulkSync  = "bulk_sync"
	RunTypeReconcile = "reconcile"
)

// PipelineRun 一次调用记录，终态转换时写入 finished_at
type PipelineRun struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	RunType string    `gorm:"size:32;not null;index"`
	Status  RunStatus `gorm:"size:32;not null;default:running"`

	TotalItems     int `gorm:"default:0"`
	ProcessedItems int `gorm:"default:0"`
	ErrorCount     int `gorm:"default:0"`

	// Report 终态报告快照，JSON 格式
	Report datatypes.JSON `gorm:"type:jsonb"`

	StartedAt  time.Time
	FinishedAt *time.Time
}

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

func (r *PipelineRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	return nil
}
