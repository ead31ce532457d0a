package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTimeMarshalJSON(t *testing.T) {
	ts := LocalTime(time.Date(2026, 8, 25, 9, 30, 5, 0, time.UTC))

	b, err := json.Marshal(ts)

	require.NoError(t, err)
	assert.Equal(t, `"2026-08-25 09:30:05"`, string(b))
}
