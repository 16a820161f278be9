package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"photoframe/internal/logging"
	"photoframe/internal/metrics"
)

// EventType identifies a Manager lifecycle event.
type EventType string

const (
	// EventProviderChanged fires after a successful provider swap.
	EventProviderChanged EventType = "provider-changed"
	// EventProviderError fires when constructing a new provider fails.
	EventProviderError EventType = "provider-error"
)

// Event carries the details of a Manager lifecycle event.
type Event struct {
	Type        EventType
	Provider    Kind
	OldProvider Kind
	Err         error
	Timestamp   time.Time
}

// Listener receives Manager events. Dispatch is sequential; a panicking
// listener is logged and does not stop delivery to the remaining listeners.
type Listener func(Event)

// Manager holds the single active storage Provider and supports hot-swapping
// it to a new configuration. The swap is all-or-nothing: construction failure
// leaves the previous provider active. In-flight operations holding a
// reference to the old provider complete against it.
type Manager struct {
	store ConfigStore

	mu       sync.RWMutex
	provider Provider
	kind     Kind

	listenerMu sync.Mutex
	listeners  map[EventType][]*listenerEntry
}

type listenerEntry struct {
	fn Listener
}

// NewManager constructs a Manager with its initial provider. store may be
// nil when no settings persistence is available (tests); the Baidu provider
// then skips refresh-token persistence.
func NewManager(cfg Config, store ConfigStore, configID int64) (*Manager, error) {
	m := &Manager{
		store:     store,
		listeners: make(map[EventType][]*listenerEntry),
	}

	provider, err := newProvider(cfg, store, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %q storage provider: %w", cfg.Provider, err)
	}

	m.provider = provider
	m.kind = cfg.Provider
	logging.Info("Storage provider initialized: %s", cfg.Provider)
	return m, nil
}

// RegisterProvider constructs a provider from config and swaps it in,
// emitting provider-changed on success. On construction failure the previous
// provider stays active and provider-error is emitted.
func (m *Manager) RegisterProvider(cfg Config, configID int64) error {
	m.mu.RLock()
	oldKind := m.kind
	m.mu.RUnlock()

	logging.Info("Switching storage provider from %s to %s", oldKind, cfg.Provider)

	provider, err := newProvider(cfg, m.store, configID)
	if err != nil {
		metrics.StorageProviderSwaps.WithLabelValues("error").Inc()
		m.emit(Event{
			Type:      EventProviderError,
			Provider:  cfg.Provider,
			Err:       err,
			Timestamp: time.Now(),
		})
		return fmt.Errorf("failed to register %q storage provider: %w", cfg.Provider, err)
	}

	m.mu.Lock()
	m.provider = provider
	m.kind = cfg.Provider
	m.mu.Unlock()

	metrics.StorageProviderSwaps.WithLabelValues("success").Inc()
	m.emit(Event{
		Type:        EventProviderChanged,
		Provider:    cfg.Provider,
		OldProvider: oldKind,
		Timestamp:   time.Now(),
	})
	return nil
}

// Provider returns the active provider.
func (m *Manager) Provider() (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.provider == nil {
		return nil, ErrNotInitialized
	}
	return m.provider, nil
}

// Kind returns the active provider's kind.
func (m *Manager) Kind() Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kind
}

// On registers a listener for an event type and returns a function that
// removes it. Registration and removal are synchronous.
func (m *Manager) On(eventType EventType, listener Listener) func() {
	entry := &listenerEntry{fn: listener}

	m.listenerMu.Lock()
	m.listeners[eventType] = append(m.listeners[eventType], entry)
	m.listenerMu.Unlock()
	logging.Debug("Storage event listener registered for: %s", eventType)

	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		entries := m.listeners[eventType]
		for i, e := range entries {
			if e == entry {
				m.listeners[eventType] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// emit dispatches an event to all listeners sequentially. A listener panic
// is logged and does not abort dispatch to the remaining listeners.
func (m *Manager) emit(event Event) {
	m.listenerMu.Lock()
	entries := make([]*listenerEntry, len(m.listeners[event.Type]))
	copy(entries, m.listeners[event.Type])
	m.listenerMu.Unlock()

	for _, entry := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("Storage event listener for %s panicked: %v", event.Type, r)
				}
			}()
			entry.fn(event)
		}()
	}
}

// newProvider constructs a backend-specific provider from a validated config.
func newProvider(cfg Config, store ConfigStore, configID int64) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case KindS3:
		return newS3Provider(cfg.S3)
	case KindLocal:
		return newLocalProvider(cfg.Local)
	case KindAList, KindOpenList:
		return newAListProvider(cfg.Provider, cfg.AList)
	case KindBaidu:
		return newBaiduProvider(cfg.Baidu, store, configID)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// record updates provider operation metrics.
func record(kind Kind, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StorageOperationsTotal.WithLabelValues(string(kind), operation, status).Inc()
	metrics.StorageOperationDuration.WithLabelValues(string(kind), operation).Observe(time.Since(start).Seconds())
}

// ensure a context always carries a deadline for outbound backend calls.
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
