package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/moonsync/internal/domain"
)

func TestQueue_PublishAndConsume(t *testing.T) {
	q := NewQueue(4, zerolog.Nop())
	now := time.Now().UTC()

	q.Publish(domain.StructureStateChanged{TS: now, StructureID: 1})
	q.Publish(domain.MoonExtractionScheduled{TS: now, StructureID: 2})
	q.Close()

	var got []domain.Event
	for e := range q.C() {
		got = append(got, e)
	}

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].(domain.StructureStateChanged).StructureID)
	assert.Equal(t, int64(2), got[1].(domain.MoonExtractionScheduled).StructureID)
}

func TestQueue_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	q := NewQueue(1, zerolog.Nop())
	now := time.Now().UTC()

	q.Publish(domain.StructureStateChanged{TS: now, StructureID: 1})

	done := make(chan struct{})
	go func() {
		q.Publish(domain.StructureStateChanged{TS: now, StructureID: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	q.Close()
	var got []domain.Event
	for e := range q.C() {
		got = append(got, e)
	}
	require.Len(t, got, 1)
}
