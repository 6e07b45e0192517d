package lane_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signal-scheduler/entity/lane"
)

func TestOrder(t *testing.T) {
	assert.Equal(t, []lane.Lane{lane.North, lane.East, lane.South, lane.West}, lane.All)
	assert.Equal(t, lane.East, lane.North.Next())
	assert.Equal(t, lane.North, lane.West.Next())
	assert.Equal(t, lane.West, lane.FromIndex(-1))
	assert.Equal(t, lane.South, lane.FromIndex(6))
	assert.Equal(t, "south", lane.South.String())
}

func TestParse(t *testing.T) {
	l, err := lane.Parse(" East ")
	require.NoError(t, err)
	assert.Equal(t, lane.East, l)

	_, err = lane.Parse("up")
	assert.ErrorIs(t, err, lane.ErrUnknownLane)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, lane.Validate(3))
	assert.ErrorIs(t, lane.Validate(4), lane.ErrLaneIndexOutRange)
	assert.ErrorIs(t, lane.Validate(-1), lane.ErrLaneIndexOutRange)
}

func TestObservations(t *testing.T) {
	o := lane.NewObservations()
	assert.Equal(t, int32(0), o.Count(lane.South))

	require.NoError(t, o.Set(lane.South, 12))
	require.NoError(t, o.Set(lane.South, 7))
	assert.Equal(t, int32(7), o.Count(lane.South))

	assert.ErrorIs(t, o.Set(lane.North, -1), lane.ErrNegativeVehicle)
	assert.ErrorIs(t, o.Set(lane.Lane(9), 1), lane.ErrLaneIndexOutRange)

	all := o.All()
	assert.Len(t, all, lane.Count)
	assert.Equal(t, int32(7), all[lane.South])

	o.Clear()
	assert.Equal(t, int32(0), o.Count(lane.South))
}

func TestObservationsConcurrent(t *testing.T) {
	o := lane.NewObservations()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, l := range lane.All {
				_ = o.Set(l, int32(i))
				_ = o.Count(l)
			}
		}(i)
	}
	wg.Wait()
	for _, l := range lane.All {
		assert.GreaterOrEqual(t, o.Count(l), int32(0))
	}
}
