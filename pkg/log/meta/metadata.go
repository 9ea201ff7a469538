package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// metadata is a mutable bag attached once near the root context so that inner layers can annotate a request.
type metadata struct {
	carrier map[interface{}]interface{}
	mu      sync.RWMutex
}

func (c *metadata) Value(key interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.carrier[key]
}

func (c *metadata) WithValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrier[key] = value
}

type contextKey struct{}

var metaContextKey = contextKey{}

// Begin 开启元信息对象
// 父上下文已包含元信息对象时直接返回父上下文，多次调用是安全的.
func Begin(parent context.Context) context.Context {
	if parent.Value(metaContextKey) != nil {
		return parent
	}
	return context.WithValue(parent, metaContextKey, &metadata{
		carrier: make(map[interface{}]interface{}),
	})
}

func metadataFrom(parent context.Context) *metadata {
	value, _ := parent.Value(metaContextKey).(*metadata)
	if value == nil {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
	}
	return value
}

// WithValue 设置键值对至上下文的元信息对象
func WithValue(parent context.Context, key, val interface{}) {
	if meta := metadataFrom(parent); meta != nil {
		meta.WithValue(key, val)
	}
}

// Value 从上下文的元信息对象中获取对应key的值
func Value(parent context.Context, key interface{}) interface{} {
	meta := metadataFrom(parent)
	if meta == nil {
		return nil
	}
	return meta.Value(key)
}
