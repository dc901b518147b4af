package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/config"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	negative := -1
	testCases := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{name: "missing path", cfg: Config{}, errMsg: "PipelinePath"},
		{name: "bad isolation", cfg: Config{PipelinePath: "p", Isolation: "thread"}, errMsg: "invalid isolation"},
		{name: "negative frequency", cfg: Config{PipelinePath: "p", Frequency: -time.Second}, errMsg: "frequency"},
		{name: "negative samples", cfg: Config{PipelinePath: "p", Samples: &negative}, errMsg: "samples"},
		{name: "negative port", cfg: Config{PipelinePath: "p", StatusPort: -1}, errMsg: "status port"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConfig(tc.cfg)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}

	cfg, err := NewConfig(Config{PipelinePath: "p"})
	require.NoError(t, err)
	assert.Equal(t, IsolationProcess, cfg.Isolation, "process isolation is the default")
}

func TestConfig_ScheduleOverrides(t *testing.T) {
	t.Parallel()

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := 9
	fromFile := &config.Schedule{Frequency: time.Minute, Samples: 2}

	t.Run("no schedule anywhere", func(t *testing.T) {
		t.Parallel()
		s, err := (&Config{}).schedule(nil)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("definition only", func(t *testing.T) {
		t.Parallel()
		s, err := (&Config{}).schedule(fromFile)
		require.NoError(t, err)
		assert.Equal(t, fromFile, s)
		assert.NotSame(t, fromFile, s, "the definition is never mutated")
	})

	t.Run("flags win", func(t *testing.T) {
		t.Parallel()
		c := &Config{Frequency: time.Second, Samples: &samples, Start: &start}
		s, err := c.schedule(fromFile)
		require.NoError(t, err)
		assert.Equal(t, time.Second, s.Frequency)
		assert.Equal(t, 9, s.Samples)
		require.NotNil(t, s.Start)
		assert.True(t, start.Equal(*s.Start))
		assert.Equal(t, time.Minute, fromFile.Frequency)
	})

	t.Run("frequency flag creates a schedule", func(t *testing.T) {
		t.Parallel()
		s, err := (&Config{Frequency: time.Second}).schedule(nil)
		require.NoError(t, err)
		assert.Equal(t, &config.Schedule{Frequency: time.Second}, s)
	})

	t.Run("start without frequency", func(t *testing.T) {
		t.Parallel()
		_, err := (&Config{Start: &start}).schedule(nil)
		assert.ErrorContains(t, err, "require a frequency")
	})
}
