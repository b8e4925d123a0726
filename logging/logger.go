package logging

import (
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析日志级别名称（大小写不敏感），无法识别时返回 Info
func ParseLevel(name string) LogLevel {
	switch name {
	case "trace", "TRACE":
		return LogLevelTrace
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	case "fatal", "FATAL":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// F 是 Field 的简写构造
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err 将 error 包装为 "error" 字段
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger 日志接口
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerFactory 日志工厂接口
type LoggerFactory interface {
	CreateLogger(category string) Logger
	AddProvider(provider LoggerProvider)
	SetMinimumLevel(level LogLevel)
}

// LoggerProvider 日志提供者接口
type LoggerProvider interface {
	CreateLogger(category string) Logger
	SetMinimumLevel(level LogLevel)
}

// loggerFactory 日志工厂实现
type loggerFactory struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
	mu           sync.RWMutex
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	f.mu.RLock()
	defer f.mu.RUnlock()

	loggers := make([]Logger, 0, len(f.providers))
	for _, provider := range f.providers {
		loggers = append(loggers, provider.CreateLogger(category))
	}

	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: f.minimumLevel,
		category:     category,
	}
}

func (f *loggerFactory) AddProvider(provider LoggerProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	provider.SetMinimumLevel(f.minimumLevel)
	f.providers = append(f.providers, provider)
}

func (f *loggerFactory) SetMinimumLevel(level LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimumLevel = level
	for _, provider := range f.providers {
		provider.SetMinimumLevel(level)
	}
}

// compositeLogger 组合日志记录器（将日志发送到多个提供者）
type compositeLogger struct {
	loggers      []Logger
	minimumLevel LogLevel
	category     string
	fields       []Field
}

// NewCompositeLogger 创建组合日志记录器（用于外部包构建）
func NewCompositeLogger(loggers []Logger, minimumLevel LogLevel, category string) Logger {
	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: minimumLevel,
		category:     category,
	}
}

func (l *compositeLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *compositeLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *compositeLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *compositeLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *compositeLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *compositeLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	os.Exit(1)
}

func (l *compositeLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < l.minimumLevel {
		return
	}

	allFields := mergeFields(l.fields, fields)
	for _, logger := range l.loggers {
		logger.Log(level, msg, allFields...)
	}
}

func (l *compositeLogger) WithFields(fields ...Field) Logger {
	return &compositeLogger{
		loggers:      l.loggers,
		minimumLevel: l.minimumLevel,
		category:     l.category,
		fields:       mergeFields(l.fields, fields),
	}
}

func (l *compositeLogger) WithCategory(category string) Logger {
	loggers := make([]Logger, 0, len(l.loggers))
	for _, logger := range l.loggers {
		loggers = append(loggers, logger.WithCategory(category))
	}
	return &compositeLogger{
		loggers:      loggers,
		minimumLevel: l.minimumLevel,
		category:     category,
		fields:       l.fields,
	}
}

// mergeFields 返回新切片，避免 append 共享底层数组
func mergeFields(base, extra []Field) []Field {
	if len(extra) == 0 {
		return base
	}
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	Output           io.Writer
}

// ConsoleLoggerProvider 控制台日志提供者
type ConsoleLoggerProvider struct {
	options      ConsoleLoggerOptions
	minimumLevel LogLevel
	mu           sync.RWMutex
	writeMu      sync.Mutex
}

func NewConsoleLoggerProvider(options ConsoleLoggerOptions) *ConsoleLoggerProvider {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.TimestampFormat == "" {
		options.TimestampFormat = "2006-01-02 15:04:05"
	}
	return &ConsoleLoggerProvider{
		options:      options,
		minimumLevel: LogLevelInfo,
	}
}

func (p *ConsoleLoggerProvider) CreateLogger(category string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()

	formatter := &TextFormatter{
		IncludeTimestamp: p.options.IncludeTimestamp,
		TimestampFormat:  p.options.TimestampFormat,
		ColorOutput:      p.options.ColorOutput,
	}
	return &writerLogger{
		category:     category,
		formatter:    formatter,
		sink:         &lockedSink{w: p.options.Output, mu: &p.writeMu},
		minimumLevel: p.minimumLevel,
	}
}

func (p *ConsoleLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minimumLevel = level
}

// sink 日志条目的最终落点
type sink interface {
	write(entry *LogEntry, formatter Formatter)
}

// lockedSink 同步写入，多个 logger 共享同一把写锁
type lockedSink struct {
	w  io.Writer
	mu *sync.Mutex
}

func (s *lockedSink) write(entry *LogEntry, formatter Formatter) {
	data, err := formatter.Format(entry)
	if err != nil {
		return
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(data)
}

// asyncSink 通过 AsyncWriter 异步写入
type asyncSink struct {
	writer *AsyncWriter
}

func (s *asyncSink) write(entry *LogEntry, _ Formatter) {
	s.writer.WriteLog(entry)
}

// writerLogger 基于 Formatter + sink 的通用实现，控制台和文件共用
type writerLogger struct {
	category     string
	formatter    Formatter
	sink         sink
	minimumLevel LogLevel
	fields       []Field
}

func (l *writerLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *writerLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *writerLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *writerLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *writerLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *writerLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	os.Exit(1)
}

func (l *writerLogger) Log(level LogLevel, msg string, fields ...Field) {
	if level < l.minimumLevel {
		return
	}
	l.sink.write(&LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Message:  msg,
		Fields:   mergeFields(l.fields, fields),
	}, l.formatter)
}

func (l *writerLogger) WithFields(fields ...Field) Logger {
	clone := *l
	clone.fields = mergeFields(l.fields, fields)
	return &clone
}

func (l *writerLogger) WithCategory(category string) Logger {
	clone := *l
	clone.category = category
	return &clone
}

// FileLoggerOptions 文件日志选项
type FileLoggerOptions struct {
	Path string
	// Json 为 true 时按行输出 JSON
	Json bool
	// BufferSize 大于 0 时使用 AsyncWriter 异步写入
	BufferSize int
}

// FileLoggerProvider 文件日志提供者
type FileLoggerProvider struct {
	options      FileLoggerOptions
	minimumLevel LogLevel
	file         *os.File
	async        *AsyncWriter
	openErr      error
	writeMu      sync.Mutex
	mu           sync.RWMutex
}

func NewFileLoggerProvider(options FileLoggerOptions) *FileLoggerProvider {
	return &FileLoggerProvider{
		options:      options,
		minimumLevel: LogLevelInfo,
	}
}

func (p *FileLoggerProvider) formatter() Formatter {
	if p.options.Json {
		return NewJsonFormatter()
	}
	return NewTextFormatter()
}

func (p *FileLoggerProvider) CreateLogger(category string) Logger {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil && p.openErr == nil {
		file, err := os.OpenFile(p.options.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			p.openErr = err
		} else {
			p.file = file
			if p.options.BufferSize > 0 {
				p.async = NewAsyncWriter(file, p.formatter(), p.options.BufferSize)
			}
		}
	}

	if p.openErr != nil {
		// 文件不可用时退化为 stderr
		return &writerLogger{
			category:     category,
			formatter:    NewTextFormatter(),
			sink:         &lockedSink{w: os.Stderr, mu: &p.writeMu},
			minimumLevel: p.minimumLevel,
		}
	}

	var s sink = &lockedSink{w: p.file, mu: &p.writeMu}
	if p.async != nil {
		s = &asyncSink{writer: p.async}
	}
	return &writerLogger{
		category:     category,
		formatter:    p.formatter(),
		sink:         s,
		minimumLevel: p.minimumLevel,
	}
}

func (p *FileLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minimumLevel = level
}

// Close 刷新并关闭日志文件
func (p *FileLoggerProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.async != nil {
		_ = p.async.Close()
		p.async = nil
	}
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}
