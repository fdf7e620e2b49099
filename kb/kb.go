package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/spectrum-manager/model"
)

// ErrNoCycle is returned when no cycle has completed yet.
var ErrNoCycle = errors.New("no cycle has completed yet")

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventCycleCompleted EventType = iota
	EventSettingsUpdated
)

func (t EventType) String() string {
	switch t {
	case EventCycleCompleted:
		return "cycle"
	case EventSettingsUpdated:
		return "settings"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Cycle    model.Cycle
	Settings model.Settings
}

// KnowledgeBase is an in-memory, thread-safe holder for the operator settings
// and the most recent cycle. It keeps no history: storing a cycle replaces the
// previous one.
type KnowledgeBase struct {
	mu sync.RWMutex

	settings model.Settings
	latest   *model.Cycle

	nextSub int
	subs    map[int]func(Event)
}

// NewKnowledgeBase constructs a KB seeded with the given settings.
func NewKnowledgeBase(settings model.Settings) *KnowledgeBase {
	return &KnowledgeBase{
		settings: settings,
		subs:     make(map[int]func(Event)),
	}
}

// Settings returns the current operator settings.
func (kb *KnowledgeBase) Settings() model.Settings {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.settings
}

// UpdateSettings validates and stores new settings, then notifies subscribers.
func (kb *KnowledgeBase) UpdateSettings(s model.Settings) error {
	env, err := model.ParseEnvironment(string(s.Environment))
	if err != nil {
		return err
	}
	s.Environment = env
	if err := s.Validate(); err != nil {
		return err
	}

	kb.mu.Lock()
	kb.settings = s
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, Event{Type: EventSettingsUpdated, Settings: s})
	return nil
}

// StoreCycle replaces the latest cycle and notifies subscribers.
func (kb *KnowledgeBase) StoreCycle(c model.Cycle) {
	c = c.Clone()

	kb.mu.Lock()
	kb.latest = &c
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventCycleCompleted, Cycle: c.Clone()})
}

// LatestCycle returns a copy of the most recent cycle, or ErrNoCycle.
func (kb *KnowledgeBase) LatestCycle() (model.Cycle, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.latest == nil {
		return model.Cycle{}, ErrNoCycle
	}
	return kb.latest.Clone(), nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			kb.mu.Lock()
			defer kb.mu.Unlock()
			delete(kb.subs, id)
		})
	}
}

// Subscribers returns the number of registered callbacks.
func (kb *KnowledgeBase) Subscribers() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.subs)
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
