package slotclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorCeil(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name  string
		in    time.Time
		floor time.Time
		ceil  time.Time
	}{
		{
			name:  "OnBoundary",
			in:    time.Date(2025, 5, 1, 10, 15, 0, 0, loc),
			floor: time.Date(2025, 5, 1, 10, 15, 0, 0, loc),
			ceil:  time.Date(2025, 5, 1, 10, 15, 0, 0, loc),
		},
		{
			name:  "InsideSlot",
			in:    time.Date(2025, 5, 1, 10, 22, 0, 0, loc),
			floor: time.Date(2025, 5, 1, 10, 15, 0, 0, loc),
			ceil:  time.Date(2025, 5, 1, 10, 30, 0, 0, loc),
		},
		{
			name:  "SecondsPastBoundary",
			in:    time.Date(2025, 5, 1, 10, 30, 45, 0, loc),
			floor: time.Date(2025, 5, 1, 10, 30, 0, 0, loc),
			ceil:  time.Date(2025, 5, 1, 10, 45, 0, 0, loc),
		},
		{
			name:  "CrossesMidnight",
			in:    time.Date(2025, 5, 1, 23, 50, 0, 0, loc),
			floor: time.Date(2025, 5, 1, 23, 45, 0, 0, loc),
			ceil:  time.Date(2025, 5, 2, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.floor.Equal(Floor(tt.in, loc)), "floor: got %s", Floor(tt.in, loc))
			assert.True(t, tt.ceil.Equal(Ceil(tt.in, loc)), "ceil: got %s", Ceil(tt.in, loc))
		})
	}
}

func TestFloor_UsesZoneWallClock(t *testing.T) {
	// Offsets that are not a multiple of 15 minutes from UTC still floor on local boundaries.
	kathmandu := time.FixedZone("NPT", 5*3600+45*60)
	in := time.Date(2025, 5, 1, 10, 7, 0, 0, kathmandu)

	got := Floor(in, kathmandu)
	assert.Equal(t, 10, got.Hour())
	assert.Equal(t, 0, got.Minute())
}

func TestSlotsOfDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	day := time.Date(2025, 7, 14, 16, 3, 0, 0, loc)

	var slots []time.Time
	for s := range SlotsOfDay(day, loc) {
		slots = append(slots, s)
	}
	require.Len(t, slots, 96)
	assert.True(t, slots[0].Equal(time.Date(2025, 7, 14, 0, 0, 0, 0, loc)))
	assert.True(t, slots[95].Equal(time.Date(2025, 7, 14, 23, 45, 0, 0, loc)))

	// Restartable: a second pass yields the same sequence.
	count := 0
	for s := range SlotsOfDay(day, loc) {
		assert.True(t, s.Equal(slots[count]))
		count++
	}
	assert.Equal(t, 96, count)

	// Early exit stops the sequence.
	seen := 0
	for range SlotsOfDay(day, loc) {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestTicks(t *testing.T) {
	start := time.Date(2025, 5, 1, 10, 5, 0, 0, time.UTC)
	end := time.Date(2025, 5, 1, 10, 35, 0, 0, time.UTC)

	var ticks []time.Time
	for tick := range Ticks(start, end, time.UTC) {
		ticks = append(ticks, tick)
	}
	require.Len(t, ticks, 3)
	assert.True(t, ticks[0].Equal(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, ticks[2].Equal(time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC)))

	empty := 0
	for range Ticks(end, start, time.UTC) {
		empty++
	}
	assert.Zero(t, empty)
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	c := Fixed(at)
	assert.True(t, c.Now().Equal(at))
	assert.Equal(t, time.UTC, c.Now().Location())
}
