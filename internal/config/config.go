package config

import (
	"fmt"
	"strings"
	"time"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/session"
	"grid-bot-dashboard/internal/transport"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config 汇总了配置文件、环境变量和命令行参数
type Config struct {
	DBPath         string
	HistoryCap     int
	FrameBuffer    int
	Reconnect      session.Policy
	WebSocket      transport.Options
	RenderInterval time.Duration
	Log            models.LogConfig
}

// 嵌套键对应的命令行参数名
var nestedFlags = map[string]string{
	"reconnect.base":       "reconnect-base",
	"reconnect.factor":     "reconnect-factor",
	"reconnect.max":        "reconnect-max",
	"reconnect.jitter":     "reconnect-jitter",
	"ws.handshake-timeout": "ws-handshake-timeout",
	"ws.ping-interval":     "ws-ping-interval",
	"ws.pong-timeout":      "ws-pong-timeout",
	"log.level":            "log-level",
	"log.output":           "log-output",
	"log.file":             "log-file",
}

// Load 按 默认值 -> 配置文件 -> 环境变量(DASHBOARD_) -> 命令行参数 的优先级合并配置
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	policy := session.DefaultPolicy()
	ws := transport.DefaultOptions()
	v.SetDefault("db-path", "./data/connections")
	v.SetDefault("history-cap", 200)
	v.SetDefault("frame-buffer", session.DefaultFrameBuffer)
	v.SetDefault("reconnect.base", policy.Base)
	v.SetDefault("reconnect.factor", policy.Factor)
	v.SetDefault("reconnect.max", policy.Max)
	v.SetDefault("reconnect.jitter", policy.Jitter)
	v.SetDefault("ws.handshake-timeout", ws.HandshakeTimeout)
	v.SetDefault("ws.ping-interval", ws.PingInterval)
	v.SetDefault("ws.pong-timeout", ws.PongTimeout)
	v.SetDefault("render-interval", 500*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file", "logs/dashboard.log")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
		for key, name := range nestedFlags {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		DBPath:      v.GetString("db-path"),
		HistoryCap:  v.GetInt("history-cap"),
		FrameBuffer: v.GetInt("frame-buffer"),
		Reconnect: session.Policy{
			Base:   v.GetDuration("reconnect.base"),
			Factor: v.GetFloat64("reconnect.factor"),
			Max:    v.GetDuration("reconnect.max"),
			Jitter: v.GetFloat64("reconnect.jitter"),
		},
		WebSocket: transport.Options{
			HandshakeTimeout: v.GetDuration("ws.handshake-timeout"),
			PingInterval:     v.GetDuration("ws.ping-interval"),
			PongTimeout:      v.GetDuration("ws.pong-timeout"),
		},
		RenderInterval: v.GetDuration("render-interval"),
		Log: models.LogConfig{
			Level:      v.GetString("log.level"),
			Output:     v.GetString("log.output"),
			File:       v.GetString("log.file"),
			MaxSize:    v.GetInt("log.max_size"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAge:     v.GetInt("log.max_age"),
			Compress:   v.GetBool("log.compress"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate 检查取值范围
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "db-path is required")
	}
	if c.HistoryCap <= 0 {
		problems = append(problems, "history-cap must be positive")
	}
	if c.FrameBuffer <= 0 {
		problems = append(problems, "frame-buffer must be positive")
	}
	if c.Reconnect.Base <= 0 {
		problems = append(problems, "reconnect.base must be positive")
	}
	if c.Reconnect.Factor < 1 {
		problems = append(problems, "reconnect.factor must be at least 1")
	}
	if c.Reconnect.Max < c.Reconnect.Base {
		problems = append(problems, "reconnect.max must not be below reconnect.base")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		problems = append(problems, "reconnect.jitter must be in [0, 1)")
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		problems = append(problems, "ws.handshake-timeout must be positive")
	}
	if c.WebSocket.PongTimeout <= 0 {
		problems = append(problems, "ws.pong-timeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.PongTimeout {
		problems = append(problems, "ws.ping-interval must be positive and below ws.pong-timeout")
	}
	if c.RenderInterval <= 0 {
		problems = append(problems, "render-interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
