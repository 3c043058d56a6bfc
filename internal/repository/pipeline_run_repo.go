package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"shopify_sync_v1_202608/internal/model"
)

// ==================== 接口定义 ====================

// PipelineRunRepository 调用记录仓储接口
type PipelineRunRepository interface {
	Create(ctx context.Context, run *model.PipelineRun) error
	UpdateProgress(ctx context.Context, id string, processed, errorCount int) error

	// Finish 终态转换，写入 finished_at
	Finish(ctx context.Context, id string, status model.RunStatus, total, processed, errorCount int) error

	// SaveReport 保存终态报告快照
	SaveReport(ctx context.Context, id string, report interface{}) error

	ListRecent(ctx context.Context, limit int) ([]model.PipelineRun, error)
}

// ==================== 仓储实现 ====================

type pipelineRunRepo struct {
	db *gorm.DB
}

func NewPipelineRunRepository(db *gorm.DB) PipelineRunRepository {
	return &pipelineRunRepo{db: db}
}

func (r *pipelineRunRepo) Create(ctx context.Context, run *model.PipelineRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *pipelineRunRepo) UpdateProgress(ctx context.Context, id string, processed, errorCount int) error {
	return r.db.WithContext(ctx).
		Model(&model.PipelineRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_items": processed,
			"error_count":     errorCount,
		}).Error
}

func (r *pipelineRunRepo) Finish(ctx context.Context, id string, status model.RunStatus, total, processed, errorCount int) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.PipelineRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"total_items":     total,
			"processed_items": processed,
			"error_count":     errorCount,
			"finished_at":     now,
		}).Error
}

func (r *pipelineRunRepo) SaveReport(ctx context.Context, id string, report interface{}) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&model.PipelineRun{}).
		Where("id = ?", id).
		Update("report", datatypes.JSON(data)).Error
}

func (r *pipelineRunRepo) ListRecent(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	var runs []model.PipelineRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
