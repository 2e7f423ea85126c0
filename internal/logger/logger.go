package logger

import (
	"io"
	"os"
	"strings"

	"grid-bot-dashboard/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var base *zap.Logger

// InitLogger 根据配置初始化全局 zap 日志记录器并返回它
func InitLogger(cfg models.LogConfig) *zap.Logger {
	base = New(cfg, os.Stdout)
	return base
}

// New 创建日志记录器，控制台输出写入 console
func New(cfg models.LogConfig, console io.Writer) *zap.Logger {
	// 配置日志级别，无法解析时默认为Info
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		// lumberjack负责日志切割，文件中不写颜色码
		fileEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(fileEncoder, fileWriter, logLevel))
	}

	// 没有有效的core时（例如配置错误）也输出到控制台
	if output == "console" || output == "both" || len(cores) == 0 {
		colored := encoderConfig
		colored.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(colored), zapcore.AddSync(console), logLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// L 返回全局 logger，未初始化时返回开发模式的应急 logger
func L() *zap.Logger {
	if base == nil {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	return base
}

// S 返回全局的sugared logger实例
func S() *zap.SugaredLogger {
	return L().Sugar()
}
