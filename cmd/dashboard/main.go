package main

import (
	"os"
	"time"

	"grid-bot-dashboard/internal/logger"
	"grid-bot-dashboard/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// 先用默认配置初始化日志，加载配置文件后再重新初始化
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Debug("未找到 .env 文件，将从系统环境变量中读取。")
	}

	root := &cobra.Command{
		Use:          "dashboard",
		Short:        "Grid bot operator dashboard",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("db-path", "./data/connections", "badger directory for saved connections")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-output", "console", "log output (console, file, both)")
	root.PersistentFlags().String("log-file", "logs/dashboard.log", "log file path")

	connections := &cobra.Command{
		Use:   "connections",
		Short: "Manage saved bot connections",
	}
	connections.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		Args:  cobra.NoArgs,
		RunE:  runList,
	})
	connections.AddCommand(&cobra.Command{
		Use:   "add <name> <address>",
		Short: "Save a new connection",
		Args:  cobra.ExactArgs(2),
		RunE:  runAdd,
	})
	connections.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	})
	root.AddCommand(connections)

	watch := &cobra.Command{
		Use:   "watch <id|name>",
		Short: "Connect to a saved bot and render its state",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watch.Flags().Int("history-cap", 200, "order events kept in memory")
	watch.Flags().Int("frame-buffer", 1024, "frames queued between socket and store")
	watch.Flags().Duration("render-interval", 500*time.Millisecond, "minimum time between redraws")
	watch.Flags().Duration("reconnect-base", time.Second, "first reconnect delay")
	watch.Flags().Duration("reconnect-max", 30*time.Second, "reconnect delay ceiling")
	watch.Flags().Float64("reconnect-jitter", 0.2, "reconnect delay jitter fraction")
	watch.Flags().Int("orders", 10, "order rows to show")
	root.AddCommand(watch)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
