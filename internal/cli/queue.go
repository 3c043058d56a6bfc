package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shopify_sync_v1_202608/internal/model"
)

// ==================== queue 命令 ====================

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "同步队列运维",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(newQueueStatusCmd())
	cmd.AddCommand(newQueueResetErrorsCmd())
	return cmd
}

func newQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "按状态统计队列并列出最近几次运行",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			counts, err := app.Assets.CountByStatus(ctx)
			if err != nil {
				return err
			}
			fmt.Println("队列状态:")
			for _, st := range []model.SyncStatus{model.SyncStatusPending, model.SyncStatusSynced, model.SyncStatusError} {
				fmt.Printf("  %-8s %d\n", st, counts[st])
			}

			if err := app.Quota.Refresh(ctx); err == nil {
				fmt.Printf("今日变体配额余量: %d / %d\n", app.Quota.Remaining(), app.Cfg.DailyVariantLimit)
			}

			runs, err := app.Runs.ListRecent(ctx, 5)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				fmt.Println("最近运行:")
				for _, run := range runs {
					finished := "-"
					if run.FinishedAt != nil {
						finished = run.FinishedAt.Format(time.RFC3339)
					}
					fmt.Printf("  %-10s %-22s 处理 %d/%d 失败 %d 结束 %s\n",
						run.RunType, run.Status, run.ProcessedItems, run.TotalItems, run.ErrorCount, finished)
				}
			}
			return nil
		},
	}
}

func newQueueResetErrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-errors",
		Short: "把 error 状态的资产重置回 pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			n, err := app.Assets.ResetErrors(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("已重置 %d 个资产回 pending\n", n)
			return nil
		},
	}
}
