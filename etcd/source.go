package etcd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Source 以 etcd 前缀为根的属性层
// 每个 key 去掉前缀后把 "/" 换成 "."；值是 JSON 或 YAML 对象时继续展开
type Source struct {
	*config.MapSource
	kv      clientv3.KV
	watcher clientv3.Watcher
	prefix  string
	logger  logging.Logger

	mu       sync.Mutex
	raw      map[string]string
	revision int64
}

// NewSource 创建属性层，调用 Load 之前为空
func NewSource(name string, kv clientv3.KV, watcher clientv3.Watcher, prefix string, logger logging.Logger) *Source {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Source{
		MapSource: config.NewMapSource(name, nil),
		kv:        kv,
		watcher:   watcher,
		prefix:    prefix,
		logger:    logger,
		raw:       make(map[string]string),
	}
}

// NewClientSource 使用同一个客户端读取和监听
func NewClientSource(name string, client *clientv3.Client, prefix string, logger logging.Logger) *Source {
	return NewSource(name, client, client, prefix, logger)
}

// Revision 最近一次加载或变更对应的修订号
func (s *Source) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Load 读取前缀下的全部 key 并替换属性层
func (s *Source) Load(ctx context.Context) error {
	resp, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("etcd: load prefix '%s': %w", s.prefix, err)
	}

	raw := make(map[string]string, len(resp.Kvs))
	var rev int64
	for _, kv := range resp.Kvs {
		raw[string(kv.Key)] = string(kv.Value)
		if kv.ModRevision > rev {
			rev = kv.ModRevision
		}
	}
	if resp.Header != nil {
		rev = resp.Header.Revision
	}

	s.mu.Lock()
	s.raw = raw
	s.revision = rev
	s.publish()
	s.mu.Unlock()

	s.logger.Debug("etcd properties loaded",
		logging.F("prefix", s.prefix),
		logging.F("keys", len(raw)),
		logging.F("revision", rev))
	return nil
}

// Watch 从最近的修订号之后监听变更，阻塞直到 ctx 结束或监听出错
func (s *Source) Watch(ctx context.Context) error {
	if s.watcher == nil {
		return fmt.Errorf("etcd: source '%s' has no watcher", s.Name())
	}
	wch := s.watcher.Watch(clientv3.WithRequireLeader(ctx), s.prefix,
		clientv3.WithPrefix(), clientv3.WithRev(s.Revision()+1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-wch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("etcd: watch channel for '%s' closed", s.prefix)
			}
			if err := resp.Err(); err != nil {
				return fmt.Errorf("etcd: watch '%s': %w", s.prefix, err)
			}
			s.apply(resp.Events)
		}
	}
}

func (s *Source) apply(events []*clientv3.Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make(map[string]string, len(s.raw))
	for k, v := range s.raw {
		raw[k] = v
	}
	for _, ev := range events {
		key := string(ev.Kv.Key)
		switch ev.Type {
		case clientv3.EventTypePut:
			raw[key] = string(ev.Kv.Value)
		case clientv3.EventTypeDelete:
			delete(raw, key)
		}
		if ev.Kv.ModRevision > s.revision {
			s.revision = ev.Kv.ModRevision
		}
	}
	s.raw = raw
	s.publish()
	s.logger.Info("etcd properties changed",
		logging.F("prefix", s.prefix),
		logging.F("events", len(events)),
		logging.F("revision", s.revision))
}

// publish 调用方持有 s.mu
func (s *Source) publish() {
	s.Replace(buildProperties(s.prefix, s.raw))
}

func buildProperties(prefix string, raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		name := propertyKey(prefix, key)
		if name == "" {
			continue
		}
		out[name] = config.ParseStructured(value)
	}
	return out
}

// propertyKey "/app/config/server/port" -> "server.port"
func propertyKey(prefix, key string) string {
	key = strings.TrimPrefix(key, prefix)
	key = strings.Trim(key, "/")
	return strings.ReplaceAll(key, "/", ".")
}
