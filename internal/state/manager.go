package state

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"matrixhub/internal/config"
	"matrixhub/internal/metrics"
	"matrixhub/internal/models"
	"matrixhub/internal/store"
)

// ValidationError reports a field outside its accepted domain. The
// request is rejected with no side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Broadcaster is the piece of the connection hub the manager needs.
type Broadcaster interface {
	Broadcast(v interface{})
}

// Manager owns the canonical in-process copy of the state document.
// Apply calls are serialized end to end (validate, persist, broadcast)
// by applyMu; docMu guards only the document itself so Current never
// waits on persistence or delivery.
type Manager struct {
	applyMu sync.Mutex

	docMu sync.RWMutex
	doc   models.StateDocument

	store   store.Store
	hub     Broadcaster
	policy  string
	maxMode int
	logger  *zap.Logger
}

// NewManager loads the persisted document (or the default) and wires
// the manager to its store and hub.
func NewManager(st store.Store, b Broadcaster, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		doc:     st.LoadState(context.Background()),
		store:   st,
		hub:     b,
		policy:  cfg.RotationPolicy,
		maxMode: cfg.ModeMax,
		logger:  logger,
	}
}

// Current returns a copy of the canonical document. Cheap, no side
// effects.
func (m *Manager) Current() models.StateDocument {
	m.docMu.RLock()
	defer m.docMu.RUnlock()
	return m.doc
}

// Apply validates a partial update and, if anything actually changed,
// persists the new document and broadcasts it. Idempotent retries that
// change nothing skip both persistence and broadcast.
func (m *Manager) Apply(ctx context.Context, req models.UpdateRequest) (models.StateDocument, error) {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	cur := m.Current()
	next := cur
	changed := false

	if req.Mode != nil {
		mode := *req.Mode
		if mode < 0 {
			return cur, &ValidationError{Field: "mode", Reason: "must not be negative"}
		}
		if m.maxMode > 0 && mode > m.maxMode {
			return cur, &ValidationError{
				Field:  "mode",
				Reason: fmt.Sprintf("must be at most %d", m.maxMode),
			}
		}
		if mode != cur.Mode {
			next.Mode = mode
			changed = true
		}
	}

	if req.Brightness != nil {
		b := *req.Brightness
		if b < 0 {
			b = 0
		}
		if b > 100 {
			b = 100
		}
		if b != cur.Brightness {
			next.Brightness = b
			changed = true
		}
	}

	if req.Rotation != nil {
		rot, err := m.normalizeRotation(*req.Rotation)
		if err != nil {
			return cur, err
		}
		if rot != cur.Rotation {
			next.Rotation = rot
			changed = true
		}
	}

	if !changed {
		return cur, nil
	}

	// Persist first so the broadcast reflects durably-intended state.
	// A storage outage degrades to in-memory-only operation.
	if err := m.store.SaveState(ctx, next); err != nil {
		metrics.PersistenceFailures.Inc()
		m.logger.Warn("state: persistence failed, continuing in memory",
			zap.Error(err))
	}

	m.docMu.Lock()
	m.doc = next
	m.docMu.Unlock()

	metrics.StateUpdates.Inc()
	m.hub.Broadcast(models.NewStateMessage(next))
	return next, nil
}

func (m *Manager) normalizeRotation(rot int) (int, error) {
	if m.policy == models.RotationStrict {
		switch rot {
		case 0, 90, 180, 270:
			return rot, nil
		}
		return 0, &ValidationError{Field: "rotation", Reason: "must be one of 0, 90, 180, 270"}
	}
	return ((rot % 360) + 360) % 360, nil
}

// SaveCurrent writes the canonical document to the store. Called
// opportunistically at shutdown.
func (m *Manager) SaveCurrent(ctx context.Context) error {
	return m.store.SaveState(ctx, m.Current())
}
