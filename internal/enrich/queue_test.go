package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_FIFO(t *testing.T) {
	q := newJobQueue()
	require.True(t, q.Enqueue(Job{UserID: 1, JourneyID: "a"}))
	require.True(t, q.Enqueue(Job{UserID: 1, JourneyID: "b"}))
	assert.Equal(t, 2, q.Len())

	j, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", j.JourneyID)

	select {
	case <-q.Wait():
	default:
		t.Fatal("remaining job must keep the queue signalled")
	}

	j, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "b", j.JourneyID)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestJobQueue_Close(t *testing.T) {
	q := newJobQueue()
	q.Enqueue(Job{UserID: 1, JourneyID: "a"})
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(Job{UserID: 1, JourneyID: "b"}))
	assert.False(t, q.Drained(), "queued job still pending")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())

	for range q.Wait() {
	}
}

func TestGroupRuns(t *testing.T) {
	assert.Equal(t, []string{"2x A", "B", "3x A"}, groupRuns([]string{"A", "A", "B", "A", "A", "A"}))
	assert.Empty(t, groupRuns(nil))
	assert.Equal(t, "A + B", joinUnits([]string{" A ", "", "B"}))
}

func TestJobKey(t *testing.T) {
	assert.Equal(t, "7/1714557600rjx640", Job{UserID: 7, JourneyID: "1714557600rjx640"}.key())
}
