package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/nodesim/internal/dynamo"
)

// Cash-Karp coefficients (embedded RK45)
const (
	ckA2 = 0.2
	ckA3 = 0.3
	ckA4 = 0.6
	ckA5 = 1.0
	ckA6 = 0.875

	ckB21 = 0.2
	ckB31 = 3.0 / 40.0
	ckB32 = 9.0 / 40.0
	ckB41 = 0.3
	ckB42 = -0.9
	ckB43 = 1.2
	ckB51 = -11.0 / 54.0
	ckB52 = 2.5
	ckB53 = -70.0 / 27.0
	ckB54 = 35.0 / 27.0
	ckB61 = 1631.0 / 55296.0
	ckB62 = 175.0 / 512.0
	ckB63 = 575.0 / 13824.0
	ckB64 = 44275.0 / 110592.0
	ckB65 = 253.0 / 4096.0

	ckC1 = 37.0 / 378.0
	ckC3 = 250.0 / 621.0
	ckC4 = 125.0 / 594.0
	ckC6 = 512.0 / 1771.0

	ckDC1 = ckC1 - 2825.0/27648.0
	ckDC3 = ckC3 - 18575.0/48384.0
	ckDC4 = ckC4 - 13525.0/55296.0
	ckDC5 = -277.0 / 14336.0
	ckDC6 = ckC6 - 0.25
)

const (
	DefaultEps      = 1e-6
	DefaultMaxSteps = 10000

	tiny = 1e-30
)

// CashKarp integrates with the embedded fifth/fourth order Cash-Karp pair and
// adapts the sub-step length until dt is covered.
type CashKarp struct {
	Eps      float64 // target scaled local error
	MaxSteps int     // accepted sub-step budget
	// NMax sets the minimum sub-step to dt/NMax when positive. Zero leaves
	// the sub-step unbounded below; a minimum of dt needs NMax 1.
	NMax     int

	safety   float64
	minScale float64
	maxScale float64
}

func NewCashKarp(eps float64, nmax int) *CashKarp {
	if eps <= 0 {
		eps = DefaultEps
	}
	return &CashKarp{
		Eps:      eps,
		MaxSteps: DefaultMaxSteps,
		NMax:     nmax,
		safety:   0.9,
		minScale: 0.1,
		maxScale: 5.0,
	}
}

func (c *CashKarp) Name() string { return "cashkarp" }

func (c *CashKarp) Step(sys dynamo.System, y0 dynamo.State, t0, dt float64) (dynamo.State, error) {
	if dt == 0 {
		return y0.Clone(), nil
	}
	minStep := 0.0
	if c.NMax > 0 {
		minStep = math.Abs(dt) / float64(c.NMax)
	}

	y := y0.Clone()
	t := t0
	tEnd := t0 + dt
	h := dt

	for n := 0; n < c.MaxSteps; n++ {
		dydt, err := derive(sys, y, t)
		if err != nil {
			return nil, err
		}
		dydt = dydt.Clone()

		last := false
		if (t+h-tEnd)*(t+h-t0) >= 0 {
			h = tEnd - t
			last = true
		}

		yNew, hDid, errMax, err := c.trial(sys, y, dydt, t, h)
		if err != nil {
			return nil, err
		}
		if hDid != h {
			last = false
		}

		y = yNew
		if last {
			return y, nil
		}
		t += hDid

		var scale float64
		if errMax > 0 {
			scale = math.Min(c.maxScale, c.safety*math.Pow(errMax, -0.2))
		} else {
			scale = c.maxScale
		}
		h = hDid * scale

		if minStep > 0 && math.Abs(h) < minStep {
			return nil, &dynamo.IntegrationError{Method: c.Name(), T: t, H: h,
				Err: fmt.Errorf("%w: next step below limit %g", dynamo.ErrStepUnderflow, minStep)}
		}
	}

	return nil, &dynamo.IntegrationError{Method: c.Name(), T: t, H: h,
		Err: fmt.Errorf("%w: no solution of accuracy %g within %d sub-steps", dynamo.ErrMaxSteps, c.Eps, c.MaxSteps)}
}

// trial shrinks h until the scaled error estimate is within Eps and returns
// the accepted state, the step actually taken and its scaled error.
func (c *CashKarp) trial(sys dynamo.System, y, dydt dynamo.State, t, h float64) (dynamo.State, float64, float64, error) {
	for {
		yOut, yErr, err := cashKarpStep(sys, y, dydt, t, h)
		if err != nil {
			return nil, 0, 0, err
		}

		errMax := 0.0
		for i := range y {
			scale := math.Abs(y[i]) + math.Abs(h*dydt[i]) + tiny
			errMax = math.Max(errMax, math.Abs(yErr[i])/scale)
		}
		errMax /= c.Eps

		if math.IsNaN(errMax) || math.IsInf(errMax, 0) {
			return nil, 0, 0, &dynamo.IntegrationError{Method: c.Name(), T: t, H: h, Err: dynamo.ErrInvalidState}
		}
		if errMax <= 1 {
			return yOut, h, errMax, nil
		}

		shrunk := c.safety * h * math.Pow(errMax, -0.25)
		h = math.Copysign(math.Max(math.Abs(shrunk), c.minScale*math.Abs(h)), h)
		if t+h == t {
			return nil, 0, 0, &dynamo.IntegrationError{Method: c.Name(), T: t, H: h,
				Err: fmt.Errorf("%w: step size dropped to zero", dynamo.ErrStepUnderflow)}
		}
	}
}

// cashKarpStep advances y over h and returns the fifth order result and the
// difference to the embedded fourth order solution.
func cashKarpStep(sys dynamo.System, y, dydt dynamo.State, t, h float64) (dynamo.State, dynamo.State, error) {
	n := len(y)
	tmp := make(dynamo.State, n)

	for i := 0; i < n; i++ {
		tmp[i] = y[i] + ckB21*h*dydt[i]
	}
	k2, err := stage(sys, tmp, t+ckA2*h)
	if err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		tmp[i] = y[i] + h*(ckB31*dydt[i]+ckB32*k2[i])
	}
	k3, err := stage(sys, tmp, t+ckA3*h)
	if err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		tmp[i] = y[i] + h*(ckB41*dydt[i]+ckB42*k2[i]+ckB43*k3[i])
	}
	k4, err := stage(sys, tmp, t+ckA4*h)
	if err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		tmp[i] = y[i] + h*(ckB51*dydt[i]+ckB52*k2[i]+ckB53*k3[i]+ckB54*k4[i])
	}
	k5, err := stage(sys, tmp, t+ckA5*h)
	if err != nil {
		return nil, nil, err
	}

	for i := 0; i < n; i++ {
		tmp[i] = y[i] + h*(ckB61*dydt[i]+ckB62*k2[i]+ckB63*k3[i]+ckB64*k4[i]+ckB65*k5[i])
	}
	k6, err := stage(sys, tmp, t+ckA6*h)
	if err != nil {
		return nil, nil, err
	}

	yOut := make(dynamo.State, n)
	yErr := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		yOut[i] = y[i] + h*(ckC1*dydt[i]+ckC3*k3[i]+ckC4*k4[i]+ckC6*k6[i])
		yErr[i] = h * (ckDC1*dydt[i] + ckDC3*k3[i] + ckDC4*k4[i] + ckDC5*k5[i] + ckDC6*k6[i])
	}
	return yOut, yErr, nil
}

func stage(sys dynamo.System, y dynamo.State, t float64) (dynamo.State, error) {
	k, err := derive(sys, y, t)
	if err != nil {
		return nil, err
	}
	return k.Clone(), nil
}
