package arangocdc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// boundHandler is a subscription's handler with its user context already
// captured by closure. Storing it this way — rather than an untyped
// context plus a runtime type check at dispatch time — makes a mismatch
// between a handler and its context a compile error (see
// Subscribe/SubscribeTo) instead of a runtime skip-and-warn.
type boundHandler struct {
	typeName string
	call     func(context.Context, DocumentOperation) error
}

// registry stores handlers keyed by (event kind, optional collection).
// Insertion order within a bucket is preserved and is the dispatch
// order.
type registry struct {
	mu            sync.Mutex
	global        map[EventKind][]boundHandler
	perCollection map[string]map[EventKind][]boundHandler
	logger        *zap.Logger
}

func newRegistry(logger *zap.Logger) *registry {
	return &registry{
		global:        make(map[EventKind][]boundHandler),
		perCollection: make(map[string]map[EventKind][]boundHandler),
		logger:        logger,
	}
}

func (r *registry) addGlobal(kind EventKind, h boundHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global[kind] = append(r.global[kind], h)
}

func (r *registry) addCollection(kind EventKind, collection string, h boundHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKind, ok := r.perCollection[collection]
	if !ok {
		byKind = make(map[EventKind][]boundHandler)
		r.perCollection[collection] = byKind
	}
	byKind[kind] = append(byKind[kind], h)
}

// dispatch invokes every matching handler in order: all global handlers
// for kind, then — if collection is non-empty and has subscribers — all
// collection-scoped handlers for kind. The registry mutex is held for
// the whole fan-out.
//
// dispatch never returns an error: a handler that errors or panics is
// logged and skipped so it cannot stall the pipeline or poison other
// subscriptions.
func (r *registry) dispatch(ctx context.Context, kind EventKind, collection string, op DocumentOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.global[kind] {
		r.invoke(ctx, h, op)
	}

	if collection == "" {
		return
	}
	byKind, ok := r.perCollection[collection]
	if !ok {
		return
	}
	for _, h := range byKind[kind] {
		r.invoke(ctx, h, op)
	}
}

func (r *registry) invoke(ctx context.Context, h boundHandler, op DocumentOperation) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked",
				zap.String("handlerType", h.typeName),
				zap.Any("recover", rec),
			)
		}
	}()
	if err := h.call(ctx, op); err != nil {
		r.logger.Warn("handler returned an error",
			zap.String("handlerType", h.typeName),
			zap.Error(err),
		)
	}
}

// Subscribe registers a global handler for kind. ctx is an opaque value
// of any shape; the compiler ties it to handler's signature, so there is
// no subscribe-time or dispatch-time type check to fail.
func Subscribe[T any](c *Consumer, kind EventKind, ctx T, handler func(context.Context, T, DocumentOperation) error) {
	c.registry.addGlobal(kind, bind(ctx, handler))
}

// SubscribeTo registers a collection-scoped handler for kind. Collection-
// scoped handlers fire after all global handlers for the same kind.
func SubscribeTo[T any](c *Consumer, kind EventKind, collection string, ctx T, handler func(context.Context, T, DocumentOperation) error) {
	c.registry.addCollection(kind, collection, bind(ctx, handler))
}

func bind[T any](ctx T, handler func(context.Context, T, DocumentOperation) error) boundHandler {
	return boundHandler{
		typeName: fmt.Sprintf("%T", ctx),
		call: func(c context.Context, op DocumentOperation) error {
			return handler(c, ctx, op)
		},
	}
}
