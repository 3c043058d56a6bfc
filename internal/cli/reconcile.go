package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ==================== reconcile 命令 ====================

func newReconcileCmd() *cobra.Command {
	var jsonlPath string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "按保存的批次文件重放对账（崩溃恢复）",
		Long: `进程死在对账之前时，远端批量变更可能已经完成。
reconcile 读取保存的批次 JSONL，拉取远端最近一次结果，
先复位批次涉及的资产再逐行回放，保证重放任意次结果一致。

不指定 --jsonl 时默认用目录里最新的批次文件。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			path := jsonlPath
			if path == "" {
				path, err = app.Artifacts.LatestBatchPath()
				if err != nil {
					return err
				}
				fmt.Printf("未指定批次文件，使用最新的: %s\n", path)
			}

			stats, err := app.Bulk.ReconcileArtifact(ctx, path)
			if err != nil {
				return err
			}
			fmt.Printf("对账完成: 成功 %d 失败 %d 限流 %d 行号失配 %d\n",
				stats.Committed, stats.Failed, stats.Throttled, stats.Missing)
			return nil
		},
	}

	cmd.Flags().StringVar(&jsonlPath, "jsonl", "", "批次 JSONL 文件路径")
	return cmd
}
