package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCycleContext_Initial(t *testing.T) {
	assert.True(t, CycleContext{Position: ""}.Initial())
	assert.True(t, CycleContext{Position: "0"}.Initial())
	assert.False(t, CycleContext{Position: "1152922976252290886"}.Initial())
}

func TestCycleReport_Totals(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := CycleReport{
		Actions: map[Action]int{
			ActionDownload:      3,
			ActionMakeDirectory: 1,
			ActionDelete:        2,
		},
		StartedAt: start,
		EndedAt:   start.Add(1500 * time.Millisecond),
	}

	assert.Equal(t, 6, r.Dispatched())
	assert.Equal(t, 1500*time.Millisecond, r.Duration())

	var empty CycleReport
	assert.Equal(t, 0, empty.Dispatched())
}
