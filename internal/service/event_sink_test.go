package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

func TestEventSinkKeepsOrderAndCopies(t *testing.T) {
	sink := NewEventSink()
	sink.Add(models.DomainEvent{ID: "1"}, models.DomainEvent{ID: "2"})
	sink.Add(models.DomainEvent{ID: "3"})

	all := sink.All()
	all[0].ID = "changed"

	assert.Equal(t, 3, sink.Len())
	assert.Equal(t, "1", sink.All()[0].ID)
	assert.Equal(t, "3", sink.All()[2].ID)

	sink.Clear()
	assert.Zero(t, sink.Len())
	assert.Empty(t, sink.All())
}
