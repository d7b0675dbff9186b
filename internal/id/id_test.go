package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDSorts(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewRunIDAt(at)
	}
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Len(t, ids[0], 26)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestCreated(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := Created(NewRunIDAt(at))
	require.NoError(t, err)
	assert.Equal(t, at, got)

	_, err = Created("not-a-ulid")
	assert.Error(t, err)
}
