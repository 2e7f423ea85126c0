package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grid-bot-dashboard/internal/config"
	"grid-bot-dashboard/internal/logger"
	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/persistence"
	"grid-bot-dashboard/internal/registry"
	"grid-bot-dashboard/internal/reporter"
	"grid-bot-dashboard/internal/session"
	"grid-bot-dashboard/internal/switchboard"
	"grid-bot-dashboard/internal/transport"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app 持有一次命令执行所需的依赖
type app struct {
	cfg  config.Config
	log  *zap.Logger
	repo persistence.ConnectionRepository
	reg  *registry.Registry
}

func setup(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	// 使用配置重新初始化日志
	log := logger.InitLogger(cfg.Log)

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open connection store: %w", err)
	}
	reg, err := registry.New(repo, log)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: log, repo: repo, reg: reg}, nil
}

func (a *app) close() {
	if err := a.repo.Close(); err != nil {
		a.log.Sugar().Warnf("关闭数据库失败: %v", err)
	}
	_ = a.log.Sync()
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return reporter.RenderConnections(cmd.OutOrStdout(), a.reg.List(), "")
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	conn, err := a.reg.Add(args[0], args[1])
	switch {
	case errors.Is(err, models.ErrPersistence):
		// 内存中已添加，但未能保存
		a.log.Sugar().Warnf("连接已添加但保存失败: %v", err)
	case err != nil:
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", conn.ID, conn.Name)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.reg.Get(args[0]); !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, args[0])
	}
	return a.reg.Remove(args[0])
}

// resolve 按 ID 查找连接，其次按唯一名称
func resolve(reg *registry.Registry, ref string) (models.BotConnection, error) {
	if c, ok := reg.Get(ref); ok {
		return c, nil
	}
	var found []models.BotConnection
	for _, c := range reg.List() {
		if c.Name == ref {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return models.BotConnection{}, fmt.Errorf("%w: %s", models.ErrNotFound, ref)
	case 1:
		return found[0], nil
	}
	return models.BotConnection{}, fmt.Errorf("name %q matches %d connections, use the id", ref, len(found))
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	conn, err := resolve(a.reg, args[0])
	if err != nil {
		return err
	}
	orderRows, _ := cmd.Flags().GetInt("orders")

	sb := switchboard.New(a.reg, session.Options{
		Dialer:      transport.NewWebSocketDialer(a.cfg.WebSocket, a.log),
		Policy:      a.cfg.Reconnect,
		HistoryCap:  a.cfg.HistoryCap,
		FrameBuffer: a.cfg.FrameBuffer,
		Logger:      a.log,
	}, a.log)
	defer sb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// dirty 合并渲染请求，渲染频率不超过 render-interval
	dirty := make(chan struct{}, 1)
	cancel := sb.Subscribe(func(switchboard.Event) {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	defer cancel()

	if err := sb.Activate(conn.ID); err != nil {
		return err
	}
	a.log.Sugar().Infof("正在监控 %s (%s)，按 Ctrl+C 退出", conn.Name, conn.Address)

	ticker := time.NewTicker(a.cfg.RenderInterval)
	defer ticker.Stop()
	out := cmd.OutOrStdout()
	pending := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-dirty:
			pending = true
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			snap, ok := sb.Snapshot()
			if !ok {
				fmt.Fprintln(out, "no active bot")
				return nil
			}
			fmt.Fprint(out, "\033[H\033[2J")
			if err := reporter.RenderSnapshot(out, snap, reporter.Options{OrderRows: orderRows}); err != nil {
				return err
			}
		}
	}
}
