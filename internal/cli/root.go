package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"shopify_sync_v1_202608/internal/config"
	"shopify_sync_v1_202608/internal/model"
	"shopify_sync_v1_202608/internal/repository"
	"shopify_sync_v1_202608/internal/service"
	"shopify_sync_v1_202608/pkg/database"
	"shopify_sync_v1_202608/pkg/shopify"
)

// ==================== 根命令与依赖容器 ====================

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "shopsync [command]",
	Short: "把作品目录投影到 Shopify 商品库的同步引擎",
	Long: `shopsync 读取作品元数据库，把待同步资产投影成 Shopify 商品。

两条执行路径：
  sync       逐条 REST 推送，小队列 / 冷启动用
  bulk-sync  批量 JSONL 管道，全量回填用

示例:
  # 逐条推 50 个资产并直接上架
  shopsync sync --limit 50 --active

  # 批量全量同步，顺带预建画家集合
  shopsync bulk-sync --collections

  # 崩溃后按批次文件重放对账
  shopsync reconcile --jsonl ./bulk-artifacts/bulk-sync-batch-3.jsonl`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newBulkSyncCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newQueueCmd())
	rootCmd.AddCommand(newWatchCmd())
}

// Execute 入口；硬失败统一退出码 1
func Execute() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// App 进程级依赖容器，所有命令共用一套装配
type App struct {
	Cfg *config.Config
	DB  *gorm.DB
	Log zerolog.Logger

	Client *shopify.Client

	Assets   repository.AssetRepository
	Variants repository.VariantRepository
	Runs     repository.PipelineRunRepository

	Quota       *service.QuotaService
	Reconciler  *service.ReconcileService
	Artifacts   *service.ArtifactStore
	Collections *service.CollectionService
	Sync        *service.SyncService
	Bulk        *service.BulkSyncService
}

// buildApp 配置校验 → 连库建表 → 装配服务
// 任何一步失败都在发出远程调用之前终止
func buildApp() (*App, error) {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := database.InitDB(cfg.DSN(), &model.Asset{}, &model.Variant{}, &model.PipelineRun{})
	if err != nil {
		return nil, err
	}

	var tokens shopify.TokenSource
	if cfg.AdminToken != "" {
		tokens = shopify.StaticToken(cfg.AdminToken)
	} else {
		tokens = shopify.NewClientCredentials(cfg.StoreDomain, cfg.ClientID, cfg.ClientSecret)
	}

	client := shopify.NewClient(shopify.Options{
		StoreDomain: cfg.StoreDomain,
		APIVersion:  cfg.APIVersion,
		Tokens:      tokens,
		Logger:      log,
		Sink: func(ev shopify.RequestEvent) {
			log.Debug().
				Str("path", ev.Path).
				Int("status", ev.Status).
				Int("attempt", ev.Attempt).
				Int64("elapsed_ms", ev.ElapsedMS).
				Msg("shopify 请求")
		},
	})

	var archiver service.ArtifactArchiver
	if cfg.StorageProvider == "s3" {
		s3a, err := service.NewS3Archiver(cfg.StorageRegion, cfg.StorageBucket, cfg.StorageKey, cfg.StorageSecret, cfg.StorageBasePath)
		if err != nil {
			return nil, err
		}
		archiver = s3a
	}

	assets := repository.NewAssetRepository(db)
	variants := repository.NewVariantRepository(db)
	runs := repository.NewPipelineRunRepository(db)

	quota := service.NewQuotaService(variants, cfg.DailyVariantLimit, log)
	reconciler := service.NewReconcileService(assets, variants, log)
	artifacts := service.NewArtifactStore(cfg.ArtifactDir, archiver, log)
	collections := service.NewCollectionService(client, log)

	app := &App{
		Cfg:         cfg,
		DB:          db,
		Log:         log,
		Client:      client,
		Assets:      assets,
		Variants:    variants,
		Runs:        runs,
		Quota:       quota,
		Reconciler:  reconciler,
		Artifacts:   artifacts,
		Collections: collections,
	}
	app.Sync = service.NewSyncService(cfg, client, assets, variants, runs, quota, reconciler, collections, log)
	app.Bulk = service.NewBulkSyncService(cfg, client, assets, variants, runs, quota, reconciler, artifacts, collections, log)
	return app, nil
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}
