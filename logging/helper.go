package logging

import "io"

// NewLogger 创建一个默认的控制台 Logger
func NewLogger() Logger {
	builder := NewLoggingBuilder()
	builder.AddConsole()
	factory := builder.Build()
	return factory.CreateLogger("default")
}

// NewWriterLogger 创建写入 w 的纯文本 Logger，不带时间戳和颜色，测试中用来断言输出
func NewWriterLogger(w io.Writer, level LogLevel) Logger {
	factory := NewLoggingBuilder().
		SetMinimumLevel(level).
		AddConsole(ConsoleLoggerOptions{Output: w}).
		Build()
	return factory.CreateLogger("")
}

// Nop 丢弃所有日志
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...Field) {}
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field) {}
func (nopLogger) Warn(string, ...Field) {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Fatal(string, ...Field) {}
func (nopLogger) Log(LogLevel, string, ...Field) {}
func (n nopLogger) WithFields(...Field) Logger { return n }
func (n nopLogger) WithCategory(string) Logger { return n }
