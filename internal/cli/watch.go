package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shopify_sync_v1_202608/internal/service"
	"shopify_sync_v1_202608/internal/task"
)

// ==================== watch 命令 ====================

func newWatchCmd() *cobra.Command {
	var (
		active      bool
		collections bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "常驻进程：按 cron 周期跑批量同步",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}

			watch := task.NewWatchTask(app.Bulk, app.Cfg.WatchCron, service.BulkRunOptions{
				Active:            active,
				EnsureCollections: collections,
			}, app.Log)
			if err := watch.Start(); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			app.Log.Info().Msg("收到退出信号，等待当前轮次收尾")
			watch.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "商品直接上架（默认草稿）")
	cmd.Flags().BoolVar(&collections, "collections", false, "提交前预建画家集合")
	return cmd
}
