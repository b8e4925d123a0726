package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// AsyncWriter 异步日志写入器
type AsyncWriter struct {
	writer     io.Writer
	formatter  Formatter
	entryCh    chan *LogEntry
	wg         sync.WaitGroup
	closeOnce  sync.Once
	errHandler func(error)
}

// NewAsyncWriter 创建新的异步写入器
func NewAsyncWriter(writer io.Writer, formatter Formatter, bufferSize int) *AsyncWriter {
	w := &AsyncWriter{
		writer:    writer,
		formatter: formatter,
		entryCh:   make(chan *LogEntry, bufferSize),
	}

	w.wg.Add(1)
	go w.process()

	return w
}

// OnError 设置格式化或写入失败时的回调，默认打印到 stderr
func (w *AsyncWriter) OnError(handler func(error)) *AsyncWriter {
	w.errHandler = handler
	return w
}

// WriteLog 写入日志条目，队列满时阻塞以保证不丢日志
func (w *AsyncWriter) WriteLog(entry *LogEntry) {
	w.entryCh <- entry
}

// Close 关闭写入器并等待队列排空
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.entryCh)
	})
	w.wg.Wait()
	return nil
}

func (w *AsyncWriter) process() {
	defer w.wg.Done()

	for entry := range w.entryCh {
		data, err := w.formatter.Format(entry)
		if err != nil {
			w.report(fmt.Errorf("async writer format: %w", err))
			continue
		}
		// JsonFormatter 的输出不带换行
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		if _, err := w.writer.Write(data); err != nil {
			w.report(fmt.Errorf("async writer write: %w", err))
		}
	}
}

func (w *AsyncWriter) report(err error) {
	if w.errHandler != nil {
		w.errHandler(err)
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
