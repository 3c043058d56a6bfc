package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/internal/service"
)

// ==================== sync 命令 ====================

func newSyncCmd() *cobra.Command {
	var (
		limit       int
		active      bool
		collections bool
		pushTags    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "逐条 REST 推送待同步资产",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if pushTags {
				report, err := app.Sync.PushTags(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Printf("标签回推完成: 处理 %d 成功 %d 失败 %d\n",
					report.Processed, report.Committed, report.Failed)
				return nil
			}

			report, err := app.Sync.Run(ctx, service.SyncOptions{
				Limit:             limit,
				Active:            active,
				EnsureCollections: collections,
			})
			if err != nil {
				return err
			}

			fmt.Printf("同步完成 [%s]: 处理 %d 成功 %d 失败 %d 跳过 %d\n",
				report.Status, report.Processed, report.Committed, report.Failed, report.Skipped)
			if report.QuotaStop {
				fmt.Println("当日变体配额耗尽，剩余资产保持 pending，明天继续")
			}
			// completed_with_errors 仍算成功退出：部分失败不应吓停调度器
			if report.Status == model.RunStatusFailed {
				return fmt.Errorf("同步运行失败")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "本次最多处理的资产数")
	cmd.Flags().BoolVar(&active, "active", false, "商品直接上架（默认草稿）")
	cmd.Flags().BoolVar(&collections, "collections", false, "同步后保证画家集合存在")
	cmd.Flags().BoolVar(&pushTags, "push-tags", false, "只把本地重算的标签推给已同步商品")
	return cmd
}
