package emtreceiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKwhPerMinute_NormalizesPerMinute(t *testing.T) {
	// 1 kWh over 10 minutes is 0.1 kWh per minute.
	assert.InDelta(t, 0.1, KwhPerMinute(100, 101, 600), 1e-9)

	// 0.5 kWh over 90 seconds.
	assert.InDelta(t, 0.5/90*60, KwhPerMinute(10, 10.5, 90), 1e-9)
}

func TestKwhPerMinute_EqualSamplesYieldZero(t *testing.T) {
	assert.Equal(t, 0.0, KwhPerMinute(50, 50, 120))
}

func TestKwhPerMinute_CounterRollbackYieldsZero(t *testing.T) {
	// A decreasing counter is a sensor anomaly, never a negative rate.
	assert.Equal(t, 0.0, KwhPerMinute(100, 99.5, 60))
	assert.Equal(t, 0.0, KwhPerMinute(100, 0, 60))
}

func TestKwhPerMinute_ZeroElapsedYieldsZero(t *testing.T) {
	assert.Equal(t, 0.0, KwhPerMinute(100, 200, 0))
}

func TestKwhPerMinute_NeverNegative(t *testing.T) {
	cases := []struct {
		prev, cur, elapsed float64
	}{
		{0, 0, 60},
		{0, 1, 1},
		{1, 0, 1},
		{123.45, 123.46, 3600},
	}
	for _, tc := range cases {
		assert.GreaterOrEqual(t, KwhPerMinute(tc.prev, tc.cur, tc.elapsed), 0.0)
	}
}
