package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Seasonality orders and the spans that switch them on.
const (
	yearlyPeriod = 365.25
	yearlyOrder  = 10
	yearlyMin    = DaysPerYear * day

	weeklyPeriod = 7.0
	weeklyOrder  = 3
	weeklyMin    = 14 * day
)

// ridge is added to the diagonal of X'X for every column but the intercept.
const ridge = 1e-2

var errNotFitted = errors.New("model not fitted")

// AdditiveModel is y(t) = trend(t) + yearly(t) + weekly(t) + noise, with
// Fourier seasonal terms, fit by ridge least squares on standardized y.
// The interval is yhat ± z·σ·sqrt(1 + x'(X'X+λI)⁻¹x).
type AdditiveModel struct {
	trend Trend
	z     float64

	yearly, weekly int
	t0             time.Time
	tScale         float64
	yMean, yScale  float64

	beta  *mat.VecDense
	chol  mat.Cholesky
	sigma float64
	p     int
}

// NewAdditiveModel returns an unfitted model with the given trend and
// interval width.
func NewAdditiveModel(trend Trend, confidence float64) *AdditiveModel {
	return &AdditiveModel{
		trend: trend,
		z:     distuv.UnitNormal.Quantile(0.5 + confidence/2),
	}
}

// Fit implements Model. ds must be ascending.
func (m *AdditiveModel) Fit(ds []time.Time, y []float64) error {
	if len(ds) != len(y) {
		return fmt.Errorf("%d dates for %d values", len(ds), len(y))
	}
	if len(ds) < 2 {
		return fmt.Errorf("need at least 2 observations, got %d", len(ds))
	}

	span := ds[len(ds)-1].Sub(ds[0])
	m.yearly, m.weekly = 0, 0
	if span >= yearlyMin {
		m.yearly = yearlyOrder
	}
	if span >= weeklyMin {
		m.weekly = weeklyOrder
	}
	m.t0 = ds[0]
	m.tScale = span.Seconds()
	if m.tScale == 0 {
		m.tScale = 1
	}
	m.p = m.columns()
	n := len(ds)
	if n <= m.p {
		return fmt.Errorf("need more than %d observations, got %d", m.p, n)
	}

	m.yMean, m.yScale = meanStd(y)
	if m.yScale == 0 {
		m.yScale = 1
	}

	x := mat.NewDense(n, m.p, nil)
	yv := mat.NewVecDense(n, nil)
	row := make([]float64, m.p)
	for i, d := range ds {
		m.features(d, row)
		x.SetRow(i, row)
		yv.SetVec(i, (y[i]-m.yMean)/m.yScale)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	for j := 1; j < m.p; j++ {
		xtx.SetSym(j, j, xtx.At(j, j)+ridge)
	}
	if ok := m.chol.Factorize(&xtx); !ok {
		return errors.New("design matrix is not positive definite")
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), yv)
	beta := mat.NewVecDense(m.p, nil)
	if err := m.chol.SolveVecTo(beta, &xty); err != nil {
		return fmt.Errorf("solve normal equations: %w", err)
	}
	m.beta = beta

	var fitted mat.VecDense
	fitted.MulVec(x, beta)
	var rss float64
	for i := 0; i < n; i++ {
		r := yv.AtVec(i) - fitted.AtVec(i)
		rss += r * r
	}
	m.sigma = math.Sqrt(rss / float64(n-m.p))
	return nil
}

// Predict implements Model.
func (m *AdditiveModel) Predict(ds []time.Time) ([]Estimate, error) {
	if m.beta == nil {
		return nil, errNotFitted
	}
	out := make([]Estimate, len(ds))
	row := make([]float64, m.p)
	xv := mat.NewVecDense(m.p, row)
	var v mat.VecDense
	for i, d := range ds {
		m.features(d, row)
		yhat := mat.Dot(xv, m.beta)
		if err := m.chol.SolveVecTo(&v, xv); err != nil {
			return nil, fmt.Errorf("interval at %s: %w", d.Format("2006-01-02"), err)
		}
		se := m.sigma * math.Sqrt(1+mat.Dot(xv, &v))
		half := m.z * se * m.yScale
		center := yhat*m.yScale + m.yMean
		out[i] = Estimate{Yhat: center, Lower: center - half, Upper: center + half}
	}
	return out, nil
}

func (m *AdditiveModel) columns() int {
	p := 1
	if m.trend == Linear {
		p++
	}
	return p + 2*m.yearly + 2*m.weekly
}

// features writes the design row for d into row. Seasonal phases are taken
// from days since the unix epoch so they do not depend on the history start.
func (m *AdditiveModel) features(d time.Time, row []float64) {
	j := 0
	row[j] = 1
	j++
	if m.trend == Linear {
		row[j] = d.Sub(m.t0).Seconds() / m.tScale
		j++
	}
	days := float64(d.Unix()) / day.Seconds()
	j = fourier(row, j, days, yearlyPeriod, m.yearly)
	fourier(row, j, days, weeklyPeriod, m.weekly)
}

func fourier(row []float64, j int, days, period float64, order int) int {
	for k := 1; k <= order; k++ {
		arg := 2 * math.Pi * float64(k) * days / period
		row[j] = math.Sin(arg)
		row[j+1] = math.Cos(arg)
		j += 2
	}
	return j
}

func meanStd(y []float64) (mean, std float64) {
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	for _, v := range y {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(y)))
}
