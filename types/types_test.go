package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes(t *testing.T) {
	{ // Test packed int for edge labeling
		en := NewEdgeKey([2]int{1, 0})
		assert.Equal(t, EdgeKey(1<<32), en)
		assert.Equal(t, [2]int{0, 1}, en.GetVertices(false))

		en = NewEdgeKey([2]int{0, 10})
		assert.Equal(t, EdgeKey(10*(1<<32)), en)
		assert.Equal(t, [2]int{10, 0}, en.GetVertices(true))

		en = NewEdgeKey([2]int{100, 100001})
		assert.Equal(t, EdgeKey(100001*(1<<32)+100), en)
		assert.Equal(t, [2]int{100, 100001}, en.GetVertices(false))

		en = NewEdgeKey([2]int{1<<32 - 1, 1})
		assert.Equal(t, EdgeKey((1<<32-1)<<32+1), en)
		assert.Equal(t, [2]int{1, 1<<32 - 1}, en.GetVertices(false))

		assert.Panics(t, func() { NewEdgeKey([2]int{-1, 2}) })
	}
	{ // Edge e is opposite vertex e
		for e := 0; e < 3; e++ {
			v1, v2 := EdgeVertices(e)
			assert.NotEqual(t, e, v1)
			assert.NotEqual(t, e, v2)
			assert.NotEqual(t, v1, v2)
		}
	}
}

func TestRunError(t *testing.T) {
	{ // Location is reported in the message
		err := ConfigErrorf("empty partition %d", 3)
		assert.True(t, IsKind(err, ConfigurationError))
		assert.False(t, IsKind(err, ConsistencyError))
		assert.Equal(t, "configuration error: empty partition 3", err.Error())

		located := Locate(err, 2, 7)
		assert.Equal(t, "configuration error [process 2, step 7]: empty partition 3", located.Error())
		var re *RunError
		assert.True(t, errors.As(located, &re))
		assert.Equal(t, 2, re.Rank)
		assert.Equal(t, 7, re.Step)
	}
	{ // Existing locations are kept
		err := Locate(ConsistencyErrorf("stale halo"), 1, NoStep)
		err = Locate(err, 3, 4)
		var re *RunError
		assert.True(t, errors.As(err, &re))
		assert.Equal(t, 1, re.Rank)
		assert.Equal(t, 4, re.Step)
	}
	{ // Plain errors are communication failures
		err := Locate(fmt.Errorf("connection reset"), 0, 2)
		assert.True(t, IsKind(err, CommunicationError))
		assert.Nil(t, Locate(nil, 0, 0))
	}
	{ // Wrapped errors keep their kind
		err := fmt.Errorf("distributing: %w", CommErrorf("timeout"))
		located := Locate(err, 1, NoStep)
		assert.True(t, IsKind(located, CommunicationError))
		assert.Contains(t, located.Error(), "process 1")
	}
}
