package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromIntRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 31, -31, 1000} {
		q := FromInt(n)
		assert.Equal(t, n, q.ToIntTrunc())
		assert.Equal(t, n, q.ToIntRound())
	}
}

func TestToIntTruncRoundsTowardZero(t *testing.T) {
	q := FromInt(7).DivInt(4) // 1.75
	assert.Equal(t, int64(1), q.ToIntTrunc())
	assert.Equal(t, int64(2), q.ToIntRound())

	neg := FromInt(-7).DivInt(4) // -1.75
	assert.Equal(t, int64(-1), neg.ToIntTrunc())
	assert.Equal(t, int64(-2), neg.ToIntRound())
}

func TestMulDiv(t *testing.T) {
	a := FromInt(4)
	b := FromInt(2)
	assert.Equal(t, int64(8), a.Mul(b).ToIntTrunc())
	assert.Equal(t, int64(2), a.Div(b).ToIntTrunc())
}

func TestPercent100Round(t *testing.T) {
	q := FromInt(1).DivInt(2) // 0.5
	assert.Equal(t, int64(50), q.Percent100Round())
}

func TestLoadAvgRecompute(t *testing.T) {
	// load_avg = (59/60)*load_avg + (1/60)*ready_count, starting at 0 with
	// one ready thread, matches the textbook MLFQ worked example.
	loadAvg := Q(0)
	fiftyNineSixtieths := FromInt(59).Div(FromInt(60))
	oneSixtieth := FromInt(1).Div(FromInt(60))
	readyCount := FromInt(1)

	loadAvg = fiftyNineSixtieths.Mul(loadAvg).Add(oneSixtieth.Mul(readyCount))
	assert.InDelta(t, 0.0166, float64(loadAvg)/float64(shift), 0.001)
}
