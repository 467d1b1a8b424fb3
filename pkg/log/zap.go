package log

import (
	"fmt"

	klog "github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	Level   string `mapstructure:"level"`  // debug/info/warn/error
	Format  string `mapstructure:"format"` // json 为生产格式，其他为开发格式
	Service string `mapstructure:"service"`
	Version string `mapstructure:"version"`
}

// NewZap 按配置构建 zap logger
func NewZap(cfg Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	fields := map[string]interface{}{}
	if cfg.Service != "" {
		fields["service"] = cfg.Service
	}
	if cfg.Version != "" {
		fields["version"] = cfg.Version
	}
	zapConfig.InitialFields = fields

	// kratos Helper 自己包了一层调用栈
	return zapConfig.Build(zap.AddCallerSkip(3))
}

// ZapLogger 将 zap 适配为 kratos log.Logger
type ZapLogger struct {
	log *zap.Logger
}

var _ klog.Logger = (*ZapLogger)(nil)

// NewZapLogger 创建适配器
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{log: l}
}

// Log 实现 kratos log.Logger，keyvals 成对出现，"msg" 作为消息
func (l *ZapLogger) Log(level klog.Level, keyvals ...interface{}) error {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "KEYVALS UNPAIRED")
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == klog.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case klog.LevelDebug:
		l.log.Debug(msg, fields...)
	case klog.LevelInfo:
		l.log.Info(msg, fields...)
	case klog.LevelWarn:
		l.log.Warn(msg, fields...)
	case klog.LevelError:
		l.log.Error(msg, fields...)
	case klog.LevelFatal:
		// 不调用 zap.Fatal，退出由调用方决定
		l.log.WithOptions(zap.WithFatalHook(zapcore.WriteThenNoop)).Fatal(msg, fields...)
	default:
		l.log.Info(msg, fields...)
	}
	return nil
}

// Sync 刷新缓冲
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}
