package node

import (
	"fmt"
	"sort"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Function is a piecewise linear table. It is immutable after construction
// and may be evaluated concurrently; callers keep their own cursor.
type Function struct {
	xs []float64
	ys []float64
}

func NewFunction(xs, ys []float64) (*Function, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("function table: %d arguments, %d values", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("function table: empty")
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("function table: arguments not strictly increasing at %d", i)
		}
	}
	return &Function{
		xs: append([]float64(nil), xs...),
		ys: append([]float64(nil), ys...),
	}, nil
}

func (f *Function) Len() int { return len(f.xs) }

// Eval interpolates at x. The cursor remembers the last interval and is
// tried first, which makes slowly moving arguments cheap.
func (f *Function) Eval(x float64, cursor *int) (float64, error) {
	n := len(f.xs)
	if x < f.xs[0] || x > f.xs[n-1] {
		return 0, fmt.Errorf("%w: %g not in [%g, %g]", dynamo.ErrOutOfRange, x, f.xs[0], f.xs[n-1])
	}
	if n == 1 {
		return f.ys[0], nil
	}

	i := *cursor
	if i < 0 || i >= n-1 || x < f.xs[i] || x > f.xs[i+1] {
		if i+1 < n-1 && i >= 0 && x >= f.xs[i+1] && x <= f.xs[i+2] {
			i++
		} else {
			i = sort.SearchFloat64s(f.xs, x) - 1
			if i < 0 {
				i = 0
			}
		}
		*cursor = i
	}

	w := (x - f.xs[i]) / (f.xs[i+1] - f.xs[i])
	return f.ys[i] + w*(f.ys[i+1]-f.ys[i]), nil
}
