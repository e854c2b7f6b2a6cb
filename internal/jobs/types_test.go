package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusQueued, StatusProcessing, StatusDone, StatusError}
	allowed := map[Status][]Status{
		StatusQueued:     {StatusProcessing},
		StatusProcessing: {StatusProcessing, StatusDone, StatusError},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	unknown := Status("paused")
	assert.False(t, unknown.Known())
	assert.False(t, unknown.Terminal())
	assert.True(t, unknown.CanTransitionTo(StatusError))
	assert.False(t, unknown.CanTransitionTo(StatusProcessing))
	assert.False(t, unknown.CanTransitionTo(StatusDone))

	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestRecordAdvance(t *testing.T) {
	now := time.Now().UTC()
	r := newRecord(newJobID())

	require.NoError(t, r.Advance(StatusProcessing, "", now))
	require.NoError(t, r.Advance(StatusError, "boom", now))
	assert.Equal(t, "boom", r.ErrorMessage)
	assert.Equal(t, now, r.UpdatedAt)

	err := r.Advance(StatusProcessing, "", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusError, r.Status)
}

func TestRecordExpired(t *testing.T) {
	r := newRecord(newJobID())
	assert.False(t, r.Expired(r.CreatedAt.Add(time.Hour), time.Hour))
	assert.True(t, r.Expired(r.CreatedAt.Add(time.Hour+time.Second), time.Hour))
}

func TestRecordViewHidesTokenHash(t *testing.T) {
	r := newRecord(newJobID())

	data, err := json.Marshal(r.View())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "download_token_hash")
	assert.NotContains(t, string(data), r.DownloadTokenHash)
	assert.NotContains(t, string(data), "download_url")

	r.Status = StatusDone
	assert.Equal(t, DownloadPath(r.JobID), r.View().DownloadURL)
}
