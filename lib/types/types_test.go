package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	testCases := map[string]time.Duration{
		"200":   200 * time.Millisecond,
		"1.5":   1500 * time.Microsecond,
		"2s":    2 * time.Second,
		"150ms": 150 * time.Millisecond,
	}
	for input, expected := range testCases {
		input, expected := input, expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			d, err := ParseDuration(input)
			require.NoError(t, err)
			assert.Equal(t, expected, d)
		})
	}

	_, err := ParseDuration("soon")
	require.Error(t, err)
}

func TestNullDurationJSON(t *testing.T) {
	t.Parallel()

	t.Run("string", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, json.Unmarshal([]byte(`"2s"`), &d))
		assert.Equal(t, NullDurationFrom(2*time.Second), d)
	})
	t.Run("number is milliseconds", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, json.Unmarshal([]byte(`200`), &d))
		assert.Equal(t, NullDurationFrom(200*time.Millisecond), d)
	})
	t.Run("null", func(t *testing.T) {
		t.Parallel()
		d := NullDurationFrom(time.Second)
		require.NoError(t, json.Unmarshal([]byte(`null`), &d))
		assert.False(t, d.Valid)

		out, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Equal(t, `null`, string(out))
	})
	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.Error(t, json.Unmarshal([]byte(`true`), &d))
	})
}

func TestNullDurationText(t *testing.T) {
	t.Parallel()

	var d NullDuration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.TimeDuration())
	assert.True(t, d.Valid)

	require.NoError(t, d.UnmarshalText(nil))
	assert.False(t, d.Valid)
}
