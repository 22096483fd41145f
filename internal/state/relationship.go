package state

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/asad/relcache/internal/logging"
)

// ErrInvalidKey is returned when a lookup is made with a nil store or,
// unless AllowEmptyKeys is set, an empty model name, client id or property.
var ErrInvalidKey = errors.New("invalid relationship key")

// Observer receives notifications about cache activity.
// Implementations must be safe for concurrent use; StoreReleased may be
// called from the runtime cleanup goroutine.
type Observer interface {
	StoreTracked()
	StoreReleased(reclaimed bool)
	StateCreated(modelName string)
}

type nopObserver struct{}

func (nopObserver) StoreTracked()       {}
func (nopObserver) StoreReleased(bool)  {}
func (nopObserver) StateCreated(string) {}

// RelationshipState is the bucket for one relationship property of one
// model instance within one store. The identifying fields never change
// after creation; callers attach their own bookkeeping through Set.
type RelationshipState[S any] struct {
	id           string
	store        weak.Pointer[S]
	modelName    string
	clientID     string
	propertyName string

	mu   sync.RWMutex
	data map[string]any
}

// ID uniquely identifies this bucket for the lifetime of the process.
func (r *RelationshipState[S]) ID() string { return r.id }

// Store returns the owning store, or nil once it has been reclaimed.
func (r *RelationshipState[S]) Store() *S { return r.store.Value() }

// ModelName returns the model type the relationship belongs to.
func (r *RelationshipState[S]) ModelName() string { return r.modelName }

// ClientID returns the local identifier of the owning model instance.
func (r *RelationshipState[S]) ClientID() string { return r.clientID }

// PropertyName returns the relationship property on the model.
func (r *RelationshipState[S]) PropertyName() string { return r.propertyName }

// Set attaches a value under key.
func (r *RelationshipState[S]) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		r.data = make(map[string]any)
	}
	r.data[key] = value
}

// Get returns the value attached under key.
func (r *RelationshipState[S]) Get(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	return v, ok
}

// Delete removes the value attached under key.
func (r *RelationshipState[S]) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
}

// Keys returns the attached keys in sorted order.
func (r *RelationshipState[S]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Data returns a shallow copy of the attached values.
func (r *RelationshipState[S]) Data() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// byProperty, byClient and byModel are the three lazily created levels
// below the per-store entry.
type (
	byProperty[S any] map[string]*RelationshipState[S]
	byClient[S any]   map[string]byProperty[S]
	byModel[S any]    map[string]byClient[S]
)

type options struct {
	logger         logging.Logger
	observer       Observer
	allowEmptyKeys bool
}

// Option configures a RelationshipCache.
type Option func(*options)

// WithLogger sets the logger used for store tracking events.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver registers an observer for cache activity.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// AllowEmptyKeys accepts empty model names, client ids and property names.
// A nil store is always rejected.
func AllowEmptyKeys() Option {
	return func(o *options) { o.allowEmptyKeys = true }
}

// RelationshipCache memoizes one RelationshipState per
// (store, modelName, clientID, propertyName) tuple.
//
// Stores are held weakly: an entry disappears once its store becomes
// unreachable, so the cache never extends a store's lifetime. S must not be
// a zero-sized type.
type RelationshipCache[S any] struct {
	mu     sync.Mutex
	stores map[weak.Pointer[S]]byModel[S]

	logger         logging.Logger
	observer       Observer
	allowEmptyKeys bool
}

// New creates an empty cache.
func New[S any](opts ...Option) *RelationshipCache[S] {
	o := options{
		logger:   logging.NewNopLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &RelationshipCache[S]{
		stores:         make(map[weak.Pointer[S]]byModel[S]),
		logger:         o.logger,
		observer:       o.observer,
		allowEmptyKeys: o.allowEmptyKeys,
	}
}

// StateFor returns the state bucket for the given tuple, creating it and any
// missing intermediate maps on first access.
func (c *RelationshipCache[S]) StateFor(store *S, modelName, clientID, propertyName string) (*RelationshipState[S], error) {
	if err := c.validate(store, modelName, clientID, propertyName); err != nil {
		return nil, err
	}

	key := weak.Make(store)

	c.mu.Lock()
	defer c.mu.Unlock()

	models, ok := c.stores[key]
	if !ok {
		models = make(byModel[S])
		c.stores[key] = models
		runtime.AddCleanup(store, c.reclaim, key)
		c.observer.StoreTracked()
		c.logger.Debug("tracking store",
			logging.Int("tracked_stores", len(c.stores)),
		)
	}

	clients, ok := models[modelName]
	if !ok {
		clients = make(byClient[S])
		models[modelName] = clients
	}

	properties, ok := clients[clientID]
	if !ok {
		properties = make(byProperty[S])
		clients[clientID] = properties
	}

	rs, ok := properties[propertyName]
	if !ok {
		rs = &RelationshipState[S]{
			id:           uuid.NewString(),
			store:        key,
			modelName:    modelName,
			clientID:     clientID,
			propertyName: propertyName,
		}
		properties[propertyName] = rs
		c.observer.StateCreated(modelName)
	}

	return rs, nil
}

// Lookup returns the existing state bucket for the tuple. It never creates
// state and never starts tracking the store.
func (c *RelationshipCache[S]) Lookup(store *S, modelName, clientID, propertyName string) (*RelationshipState[S], bool) {
	if store == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rs, ok := c.stores[weak.Make(store)][modelName][clientID][propertyName]
	return rs, ok
}

// Forget drops every state bucket belonging to store. It reports whether the
// store was tracked.
func (c *RelationshipCache[S]) Forget(store *S) bool {
	if store == nil {
		return false
	}
	return c.release(weak.Make(store), false)
}

// Len returns the number of stores currently tracked.
func (c *RelationshipCache[S]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stores)
}

func (c *RelationshipCache[S]) reclaim(key weak.Pointer[S]) {
	c.release(key, true)
}

func (c *RelationshipCache[S]) release(key weak.Pointer[S], reclaimed bool) bool {
	c.mu.Lock()
	_, ok := c.stores[key]
	if ok {
		delete(c.stores, key)
	}
	remaining := len(c.stores)
	c.mu.Unlock()

	if !ok {
		return false
	}

	c.observer.StoreReleased(reclaimed)
	c.logger.Debug("released store",
		logging.Bool("reclaimed", reclaimed),
		logging.Int("tracked_stores", remaining),
	)
	return true
}

func (c *RelationshipCache[S]) validate(store *S, modelName, clientID, propertyName string) error {
	if store == nil {
		return fmt.Errorf("%w: store is nil", ErrInvalidKey)
	}
	if c.allowEmptyKeys {
		return nil
	}
	switch {
	case modelName == "":
		return fmt.Errorf("%w: model name is empty", ErrInvalidKey)
	case clientID == "":
		return fmt.Errorf("%w: client id is empty", ErrInvalidKey)
	case propertyName == "":
		return fmt.Errorf("%w: property name is empty", ErrInvalidKey)
	}
	return nil
}
