package logging

import (
	"fmt"

	"github.com/fatih/color"
)

var levelColors = map[LogLevel]*color.Color{
	LogLevelTrace: color.New(color.FgHiBlack),
	LogLevelDebug: color.New(color.FgCyan),
	LogLevelInfo:  color.New(color.FgGreen),
	LogLevelWarn:  color.New(color.FgYellow),
	LogLevelError: color.New(color.FgRed),
	LogLevelFatal: color.New(color.FgMagenta, color.Bold),
}

// colorize 为日志级别着色，强制输出颜色（由 ColorOutput 决定是否调用）
func colorize(level LogLevel, text string) string {
	c, ok := levelColors[level]
	if !ok {
		return text
	}
	c.EnableColor()
	return c.Sprint(text)
}

// TextFormatter 文本格式化器
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ColorOutput:      false,
	}
}

// Format 格式化日志
func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	buffer := getBuffer()
	defer putBuffer(buffer)

	if f.IncludeTimestamp {
		buffer.WriteString(entry.Time.Format(f.TimestampFormat))
		buffer.WriteByte(' ')
	}

	levelStr := entry.Level.String()
	if f.ColorOutput {
		buffer.WriteString(colorize(entry.Level, levelStr))
	} else {
		buffer.WriteString(levelStr)
	}

	if entry.Category != "" {
		buffer.WriteString(" [")
		buffer.WriteString(entry.Category)
		buffer.WriteString("]")
	}

	buffer.WriteByte(' ')
	buffer.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		buffer.WriteString(" {")
		for i, field := range entry.Fields {
			if i > 0 {
				buffer.WriteString(", ")
			}
			buffer.WriteString(field.Key)
			buffer.WriteByte('=')
			fmt.Fprintf(buffer, "%v", field.Value)
		}
		buffer.WriteByte('}')
	}

	buffer.WriteByte('\n')

	result := make([]byte, buffer.Len())
	copy(result, buffer.Bytes())
	return result, nil
}
