package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
)

// EventSerializer converts domain events to and from the JSON stored in the outbox
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type // eventType -> struct type
}

// NewEventSerializer creates an empty serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// NewLedgerEventSerializer creates a serializer that knows every ledger event
func NewLedgerEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterLedgerEvents(s)
	return s
}

// RegisterLedgerEvents registers the ledger event types.
// The outbox processor needs them to decode stored payloads.
func RegisterLedgerEvents(s *EventSerializer) {
	s.Register(ledger.EventTypeLedgerPosted, &ledger.LedgerPostedEvent{})
	s.Register(ledger.EventTypeLedgerReversed, &ledger.LedgerReversedEvent{})
}

// Register maps an event type name to the struct that decodes it
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize encodes a domain event
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("cannot serialize a nil event")
	}
	if v := reflect.ValueOf(event); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, fmt.Errorf("cannot serialize a nil %T", event)
	}
	return json.Marshal(event)
}

// Deserialize decodes a payload of a registered event type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("registered type %s does not implement DomainEvent", t)
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns the registered event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
