package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/t1mm4te/MusicCircles/config"
	"github.com/t1mm4te/MusicCircles/core/bot"
	"github.com/t1mm4te/MusicCircles/core/mediaapi"
	"github.com/t1mm4te/MusicCircles/core/musicapi"
	"github.com/t1mm4te/MusicCircles/core/statsapi"
	"github.com/t1mm4te/MusicCircles/core/telegram"
	"github.com/t1mm4te/MusicCircles/logger"
	"github.com/t1mm4te/MusicCircles/server"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Run: func(cmd *cobra.Command, args []string) {
		runBot()
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})

	if cfg.TelegramToken == "" {
		logger.Fatal("TB_TOKEN is not set")
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		logger.Fatal("creating download directory failed",
			logger.String("dir", cfg.DownloadDir), logger.ErrorField(err))
	}

	sessions := bot.NewStore(cfg.DownloadDir)
	music := musicapi.NewClient(cfg.AudioReceiverURL)
	media := mediaapi.NewClient(cfg.MediaProcessorURL)
	stats := statsapi.NewClient(cfg.DatabaseAPIURL)
	tg := telegram.NewClient(cfg.TelegramToken)

	orch := bot.NewOrchestrator(sessions, tg, music, media, stats, cfg.DefaultCoverPath)

	go func() {
		if err := server.Start(cfg.OpsAddr, sessions); err != nil {
			logger.Error("ops server stopped", logger.ErrorField(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("bot starting",
		logger.String("downloadDir", cfg.DownloadDir),
		logger.String("opsAddr", cfg.OpsAddr))

	if err := tg.Poll(ctx, orch); err != nil && ctx.Err() == nil {
		logger.Fatal("update polling stopped", logger.ErrorField(err))
	}
	logger.Info("bot shut down")
}
