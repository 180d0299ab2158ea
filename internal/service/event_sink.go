package service

import "github.com/SilverKineticsIndustries/w80-sub000/internal/models"

// EventSink collects the events raised during one unit of work, in order.
// It is created per request and handed to the MutationCoordinator, which
// clears it only after a successful commit. It is not safe for concurrent use.
type EventSink struct {
	events []models.DomainEvent
}

// NewEventSink returns an empty sink.
func NewEventSink() *EventSink {
	return &EventSink{}
}

// Add appends events in the order given.
func (s *EventSink) Add(events ...models.DomainEvent) {
	s.events = append(s.events, events...)
}

// All returns a copy of the collected events.
func (s *EventSink) All() []models.DomainEvent {
	return append([]models.DomainEvent(nil), s.events...)
}

// Len reports how many events are pending.
func (s *EventSink) Len() int {
	return len(s.events)
}

// Clear drops every pending event.
func (s *EventSink) Clear() {
	s.events = nil
}
