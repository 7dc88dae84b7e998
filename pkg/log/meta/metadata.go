package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// metadata carries request scoped values that handlers may add after the
// context was created, e.g. the verification view id resolved by a handler.
type metadata struct {
	carrier map[interface{}]interface{}
	mu      sync.RWMutex
}

func (c *metadata) WithValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrier[key] = value
}

func (c *metadata) Fields() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fields := make(map[string]interface{}, len(c.carrier))
	for k, v := range c.carrier {
		if s, ok := k.(string); ok {
			fields[s] = v
		}
	}
	return fields
}

type contextKey struct{}

var metaContextKey = contextKey{}

const (
	RequestIDKey = "request_id"
	ViewIDKey    = "view_id"
)

// Begin attaches a metadata carrier to parent.
// Calling it on a context that already carries one returns parent unchanged,
// so it is safe to call from nested middlewares. Call it as close to the root
// context as possible.
func Begin(parent context.Context) context.Context {
	value := parent.Value(metaContextKey)
	if value == nil {
		meta := &metadata{
			carrier: make(map[interface{}]interface{}),
		}
		child := context.WithValue(parent, metaContextKey, meta)
		return child
	}
	return parent
}

func metadataFrom(parent context.Context) *metadata {
	value := parent.Value(metaContextKey)
	if value == nil {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
		return nil
	}
	return value.(*metadata)
}

// WithValue stores key/val in the carrier of parent. No-op without Begin.
func WithValue(parent context.Context, key, val interface{}) {
	meta := metadataFrom(parent)
	if meta == nil {
		return
	}
	meta.WithValue(key, val)
}

// Fields returns the string keyed values of the carrier, nil without Begin.
func Fields(parent context.Context) map[string]interface{} {
	meta := metadataFrom(parent)
	if meta == nil {
		return nil
	}
	return meta.Fields()
}
