package redistribute

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id    string
	value float64
}

func rowValue(r row) float64 { return r.value }

func rowsOf(values ...float64) []row {
	rows := make([]row, len(values))
	for i, v := range values {
		rows[i] = row{id: string(rune('a' + i)), value: v}
	}
	return rows
}

func total(rows []row) float64 {
	var s float64
	for _, r := range rows {
		s += r.value
	}
	return s
}

func TestProportionalScaleDown(t *testing.T) {
	rows := rowsOf(100, 200, 700)

	updates, err := Proportional(rows, rowValue, 1000, 500)
	require.NoError(t, err)
	require.Len(t, updates, 3)

	assert.Equal(t, "a", updates[0].Row.id)
	assert.Equal(t, int64(50), updates[0].Value)
	assert.Equal(t, int64(100), updates[1].Value)
	assert.Equal(t, int64(350), updates[2].Value)
	assert.Equal(t, int64(500), Sum(updates))
}

func TestProportionalZeroTotal(t *testing.T) {
	rows := rowsOf(0, 0, 0)
	for _, newTotal := range []float64{0, 1, 500, 1e9} {
		_, err := Proportional(rows, rowValue, 0, newTotal)
		assert.ErrorIs(t, err, ErrUndefinedRedistribution, "newTotal=%v", newTotal)
	}

	_, err := Proportional([]row{}, rowValue, 0, 10)
	assert.ErrorIs(t, err, ErrUndefinedRedistribution)
}

func TestProportionalInvalidInput(t *testing.T) {
	rows := rowsOf(10, 20)

	tests := []struct {
		name     string
		rows     []row
		oldTotal float64
		newTotal float64
	}{
		{"negative target", rows, 30, -1},
		{"NaN target", rows, 30, math.NaN()},
		{"infinite target", rows, 30, math.Inf(1)},
		{"stale old total", rows, 31, 10},
		{"negative row", rowsOf(10, -5), 5, 10},
		{"NaN row", rowsOf(10, math.NaN()), 10, 10},
		{"target past int64", rowsOf(1, 1), 2, 1e20},
		{"target past float precision", rows, 30, MaxTotal + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Proportional(tt.rows, rowValue, tt.oldTotal, tt.newTotal)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestProportionalLargestTotal(t *testing.T) {
	updates, err := Proportional(rowsOf(1, 1), rowValue, 2, MaxTotal)
	require.NoError(t, err)
	for _, u := range updates {
		assert.Equal(t, int64(MaxTotal/2), u.Value)
	}
	assert.Equal(t, int64(MaxTotal), Sum(updates))
}

func TestProportionalRoundingBound(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(40)
		values := make([]float64, n)
		for j := range values {
			values[j] = float64(rng.Intn(10_000))
		}
		values[0]++ // keep the base non-zero
		rows := rowsOf(values...)
		newTotal := float64(rng.Intn(1_000_000))

		updates, err := Proportional(rows, rowValue, total(rows), newTotal)
		require.NoError(t, err)

		drift := math.Abs(float64(Sum(updates)) - newTotal)
		assert.LessOrEqual(t, drift, float64(n)/2, "rows=%v newTotal=%v", values, newTotal)
	}
}

func TestProportionalNearIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(20)
		values := make([]float64, n)
		for j := range values {
			values[j] = float64(1 + rng.Intn(5_000))
		}
		rows := rowsOf(values...)
		sum := total(rows)

		updates, err := Proportional(rows, rowValue, sum, sum)
		require.NoError(t, err)
		for j, u := range updates {
			assert.InDelta(t, values[j], float64(u.Value), 0.5)
		}
	}
}

func TestProportionalKeepsShareOrdering(t *testing.T) {
	rows := rowsOf(5, 300, 40, 1200)
	updates, err := Proportional(rows, rowValue, total(rows), 10_000)
	require.NoError(t, err)

	for i := range rows {
		for j := range rows {
			if rows[i].value < rows[j].value {
				assert.LessOrEqual(t, updates[i].Value, updates[j].Value)
			}
		}
	}
}

func TestEvenSplit(t *testing.T) {
	updates, err := EvenSplit(rowsOf(0, 0, 0), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3, 3}, []int64{updates[0].Value, updates[1].Value, updates[2].Value})
	assert.Equal(t, int64(10), Sum(updates))

	_, err = EvenSplit(rowsOf(0), -1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = EvenSplit([]row{}, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
