package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerOptions zap 日志选项
type ZapLoggerOptions struct {
	// Development 使用 zap 的开发配置（console 编码，带调用栈）
	Development bool
	// Core 非空时直接使用，忽略 Development
	Core zapcore.Core
}

// ZapLoggerProvider 将日志转发给 zap
type ZapLoggerProvider struct {
	base         *zap.Logger
	level        zap.AtomicLevel
	minimumLevel LogLevel
	mu           sync.RWMutex
}

func NewZapLoggerProvider(options ZapLoggerOptions) *ZapLoggerProvider {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	var base *zap.Logger
	switch {
	case options.Core != nil:
		base = zap.New(options.Core)
	case options.Development:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = level
		base, _ = cfg.Build()
	default:
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		base, _ = cfg.Build()
	}
	if base == nil {
		base = zap.NewNop()
	}

	return &ZapLoggerProvider{
		base:         base,
		level:        level,
		minimumLevel: LogLevelInfo,
	}
}

func (p *ZapLoggerProvider) CreateLogger(category string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()

	l := p.base
	if category != "" {
		l = l.Named(category)
	}
	return &zapLogger{base: p.base, logger: l, minimumLevel: p.minimumLevel}
}

func (p *ZapLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minimumLevel = level
	p.level.SetLevel(toZapLevel(level))
}

// Sync 刷新 zap 缓冲
func (p *ZapLoggerProvider) Sync() error {
	return p.base.Sync()
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

type zapLogger struct {
	base         *zap.Logger
	logger       *zap.Logger
	minimumLevel LogLevel
}

func (l *zapLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.Log(LogLevelFatal, msg, fields...) }

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < l.minimumLevel {
		return
	}
	// Fatal 由 compositeLogger 负责退出，这里只记录
	zl := toZapLevel(level)
	if zl == zapcore.FatalLevel {
		zl = zapcore.ErrorLevel
	}
	if ce := l.logger.Check(zl, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{base: l.base, logger: l.logger.With(toZapFields(fields)...), minimumLevel: l.minimumLevel}
}

func (l *zapLogger) WithCategory(category string) Logger {
	return &zapLogger{base: l.base, logger: l.base.Named(category), minimumLevel: l.minimumLevel}
}
