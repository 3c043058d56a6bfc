package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/internal/service"
)

// ==================== bulk-sync 命令 ====================

func newBulkSyncCmd() *cobra.Command {
	var (
		maxBatches  int
		dryRun      bool
		status      bool
		active      bool
		collections bool
	)

	cmd := &cobra.Command{
		Use:   "bulk-sync",
		Short: "批量 JSONL 管道：构建、上传、轮询、对账",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if status {
				op, err := app.Bulk.Status(ctx)
				if err != nil {
					return err
				}
				if op == nil {
					fmt.Println("远端没有批量操作记录")
					return nil
				}
				fmt.Printf("批量操作 %s\n状态: %s\n对象数: %s\n", op.ID, op.Status, op.ObjectCount)
				if op.ErrorCode != "" {
					fmt.Printf("错误码: %s\n", op.ErrorCode)
				}
				if url := op.ResultURL(); url != "" {
					fmt.Printf("结果文件: %s\n", url)
				}
				return nil
			}

			report, err := app.Bulk.Run(ctx, service.BulkRunOptions{
				DryRun:            dryRun,
				MaxBatches:        maxBatches,
				Active:            active,
				EnsureCollections: collections,
			})
			if err != nil {
				return err
			}

			fmt.Printf("批量同步完成 [%s]: 批次 %d 投影 %d 成功 %d 失败 %d 限流 %d 跳过 %d\n",
				report.Status, report.Batches, report.Projected,
				report.Committed, report.Failed, report.Throttled, report.Skipped)
			if report.Status == model.RunStatusFailed {
				return fmt.Errorf("批量同步运行失败")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxBatches, "batch", 0, "最多跑多少批（0 不限）")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只构建第一批 JSONL，不上传")
	cmd.Flags().BoolVar(&status, "status", false, "只查询当前批量操作状态")
	cmd.Flags().BoolVar(&active, "active", false, "商品直接上架（默认草稿）")
	cmd.Flags().BoolVar(&collections, "collections", false, "提交前预建画家集合")
	return cmd
}
