package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Formatter 日志格式化接口
type Formatter interface {
	// Format 格式化日志条目，返回的字节切片归调用方所有
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry 日志条目
type LogEntry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(b *bytes.Buffer) {
	// 过大的缓冲不回收
	if b.Cap() > 64<<10 {
		return
	}
	b.Reset()
	bufferPool.Put(b)
}

// JsonFormatter JSON 格式化器，每条日志一个对象，不带换行
type JsonFormatter struct {
	TimestampFormat string
}

// NewJsonFormatter 创建 JSON 格式化器
func NewJsonFormatter() *JsonFormatter {
	return &JsonFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	}
}

type jsonEntry struct {
	Time     string         `json:"time"`
	Level    string         `json:"level"`
	Category string         `json:"category,omitempty"`
	Message  string         `json:"msg"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Format 格式化日志
func (f *JsonFormatter) Format(entry *LogEntry) ([]byte, error) {
	out := jsonEntry{
		Time:     entry.Time.Format(f.TimestampFormat),
		Level:    entry.Level.String(),
		Category: entry.Category,
		Message:  entry.Message,
	}
	if len(entry.Fields) > 0 {
		out.Fields = make(map[string]any, len(entry.Fields))
		for _, field := range entry.Fields {
			out.Fields[field.Key] = jsonValue(field.Value)
		}
	}

	buffer := getBuffer()
	defer putBuffer(buffer)
	enc := json.NewEncoder(buffer)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	// Encode 追加了换行
	result := make([]byte, buffer.Len()-1)
	copy(result, buffer.Bytes())
	return result, nil
}

// error 和 Stringer 直接序列化会丢失内容
func jsonValue(v any) any {
	switch val := v.(type) {
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	case []string, string, bool, nil:
		return val
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}
