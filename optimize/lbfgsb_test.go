package optimize

import (
	"bytes"
	"math"
	"testing"

	"github.com/mani33/Psignifit-3.x/psi"
)

// plainBowl hides the gradient of bowl.
type plainBowl struct {
	b *bowl
}

func (p plainBowl) GetNparams() int                  { return p.b.GetNparams() }
func (p plainBowl) GetStart(data *psi.Data) []float64 { return p.b.GetStart(data) }
func (p plainBowl) NegLogPosterior(prm []float64, data *psi.Data) float64 {
	return p.b.NegLogPosterior(prm, data)
}

// boundedBowl has the minimum outside of the box for the first
// parameter.
type boundedBowl struct {
	bowl
}

func (b *boundedBowl) Bounds() [][2]float64 {
	return [][2]float64{{2, 5}, {-10, 10}, {-10, 10}}
}

func TestLBFGSBBowl(tst *testing.T) {
	b := newBowl()
	for _, m := range []Model{b, plainBowl{b}} {
		l := NewLBFGSB(m)
		for _, start := range [][]float64{nil, {-10, 7, 30}} {
			x := l.Optimize(m, nil, start)
			checkCenter(tst, b, x)
			if !l.Converged() {
				tst.Error("L-BFGS-B did not converge from", start)
			}
			if s := l.Summary(); s.Method != "lbfgsb" || !appreq(s.MinNegLogPosterior, 1, 1e-8) {
				tst.Error("Incorrect summary:", s)
			}
		}
	}
}

func TestLBFGSBBounds(tst *testing.T) {
	b := &boundedBowl{*newBowl()}
	l := NewLBFGSB(b)
	x := l.Optimize(b, nil, []float64{4, 0, 0})
	if x[0] < 2 || x[0] > 2+1e-3 {
		tst.Error("Expected the first parameter at the lower bound, got", x[0])
	}
	for i := 1; i < 3; i++ {
		if math.Abs(x[i]-b.center[i]) > smallDiff {
			tst.Errorf("Parameter %d: expected %v, got %v", i, b.center[i], x[i])
		}
	}
	// the starting point is moved inside the box
	x = l.Optimize(b, nil, []float64{-100, 0, 0})
	if x[0] < 2 || x[0] > 5 {
		tst.Error("Result is outside of the box:", x)
	}
}

func TestLBFGSBRecovery(tst *testing.T) {
	m := newLogisticModel(tst)
	truth := []float64{0, 2, 0.02}
	data := expectedData(tst, m, truth, 4000)
	l := NewLBFGSB(m)
	l.SetReportPeriod(1)
	x := l.Optimize(m, data, nil)
	if math.Abs(x[0]) > 0.1 || math.Abs(x[1]-2) > 0.3 {
		tst.Error("Incorrect estimate:", x)
	}

	ds := NewSimplex(m)
	xs := ds.Optimize(m, data, nil)
	if math.Abs(m.NegLogPosterior(x, data)-m.NegLogPosterior(xs, data)) > 1e-3 {
		tst.Error("L-BFGS-B and simplex disagree:", x, xs)
	}

	var buf bytes.Buffer
	if err := l.WriteTrajectory(&buf); err != nil {
		tst.Fatal("Error: ", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("iteration\tnegLogPosterior\ta\tb\tlambda\n")) {
		tst.Error("Incorrect trajectory header:", buf.String())
	}
}
