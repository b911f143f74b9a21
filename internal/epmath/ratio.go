package epmath

import "github.com/holiman/uint256"

// DustUnits is how many native units of each asset a rebalance gap must
// exceed before a tranche is moved.
const DustUnits = 4

// Tranche is the part of tranche state the math operates on.
type Tranche struct {
	ReserveA    *uint256.Int
	ReserveB    *uint256.Int
	TargetRatio *uint256.Int
}

// IsEmpty reports whether the tranche holds no reserves.
func (t Tranche) IsEmpty() bool {
	return t.ReserveA.IsZero() && t.ReserveB.IsZero()
}

// Delta is the trade that moves reserves to the target ratio.
// RChange is 1 when DeltaA is added and DeltaB released, 0 for the reverse.
type Delta struct {
	DeltaA  *uint256.Int
	DeltaB  *uint256.Int
	RChange uint8
	RDiv    *uint256.Int
}

// IsZero reports whether the delta moves nothing.
func (d Delta) IsZero() bool {
	return d.DeltaA.IsZero() && d.DeltaB.IsZero()
}

func zeroDelta(rChange uint8, rDiv *uint256.Int) Delta {
	return Delta{DeltaA: Zero(), DeltaB: Zero(), RChange: rChange, RDiv: rDiv}
}

// valueAInB returns the value of amountA in 1e18-normalized TokenB units.
func valueAInB(amountA, rate *uint256.Int, s Scales, r Rounding) (*uint256.Int, error) {
	return MulDiv(amountA, rate, s.A, r)
}

// CurrentRatio returns the value of reserveA over the value of reserveB.
func CurrentRatio(t Tranche, rate *uint256.Int, s Scales) (*uint256.Int, error) {
	switch {
	case t.IsEmpty():
		return t.TargetRatio.Clone(), nil
	case t.ReserveA.IsZero():
		return Zero(), nil
	case t.ReserveB.IsZero():
		return MaxRatio.Clone(), nil
	}

	vA, err := valueAInB(t.ReserveA, rate, s, Down)
	if err != nil {
		return nil, err
	}
	nB, err := normalize(t.ReserveB, s.B, Down)
	if err != nil {
		return nil, err
	}
	return MulDiv(vA, EPoolSF, nB, Down)
}

// Deviation returns |current-target|/target, saturating at MaxRatio.
func Deviation(current, target *uint256.Int) (*uint256.Int, error) {
	if current.Eq(MaxRatio) {
		return MaxRatio.Clone(), nil
	}
	if target.IsZero() {
		if current.IsZero() {
			return Zero(), nil
		}
		return MaxRatio.Clone(), nil
	}
	return MulDiv(AbsDiff(current, target), EPoolSF, target, Down)
}

// noiseFloor is the largest value gap, in normalized TokenB, treated as
// rounding noise: DustUnits native units of each asset.
func noiseFloor(rate *uint256.Int, s Scales) (*uint256.Int, error) {
	unitA, err := MulDiv(rate, uint256.NewInt(1), s.A, Up)
	if err != nil {
		return nil, err
	}
	unitB, err := MulDiv(EPoolSF, uint256.NewInt(1), s.B, Up)
	if err != nil {
		return nil, err
	}
	units, err := Add(unitA, unitB)
	if err != nil {
		return nil, err
	}
	return Mul(units, uint256.NewInt(DustUnits))
}

// TrancheDelta returns the value-preserving trade that restores the target
// ratio of t at the given rate.
func TrancheDelta(t Tranche, rate *uint256.Int, s Scales) (Delta, error) {
	if rate.IsZero() {
		return Delta{}, ErrZeroRate
	}
	current, err := CurrentRatio(t, rate, s)
	if err != nil {
		return Delta{}, err
	}
	rDiv, err := Deviation(current, t.TargetRatio)
	if err != nil {
		return Delta{}, err
	}
	var rChange uint8
	if current.Lt(t.TargetRatio) {
		rChange = 1
	}
	if t.IsEmpty() {
		return zeroDelta(rChange, rDiv), nil
	}

	vA, err := valueAInB(t.ReserveA, rate, s, Down)
	if err != nil {
		return Delta{}, err
	}
	nB, err := normalize(t.ReserveB, s.B, Down)
	if err != nil {
		return Delta{}, err
	}
	total, err := Add(vA, nB)
	if err != nil {
		return Delta{}, err
	}
	denom, err := Add(EPoolSF, t.TargetRatio)
	if err != nil {
		return Delta{}, err
	}
	targetA, err := MulDiv(total, t.TargetRatio, denom, Down)
	if err != nil {
		return Delta{}, err
	}

	gap := AbsDiff(vA, targetA)
	floor, err := noiseFloor(rate, s)
	if err != nil {
		return Delta{}, err
	}
	if !gap.Gt(floor) {
		return zeroDelta(rChange, rDiv), nil
	}

	var deltaA, deltaB *uint256.Int
	if rChange == 1 {
		// short on A: A comes in at cost, B goes out at value
		if deltaB, err = MulDiv(gap, s.B, EPoolSF, Down); err != nil {
			return Delta{}, err
		}
		if deltaA, err = MulDiv(gap, s.A, rate, Up); err != nil {
			return Delta{}, err
		}
		if deltaB.Gt(t.ReserveB) {
			return zeroDelta(rChange, rDiv), nil
		}
	} else {
		if deltaA, err = MulDiv(gap, s.A, rate, Down); err != nil {
			return Delta{}, err
		}
		if deltaB, err = MulDiv(gap, s.B, EPoolSF, Up); err != nil {
			return Delta{}, err
		}
		if deltaA.Gt(t.ReserveA) {
			return zeroDelta(rChange, rDiv), nil
		}
	}
	if deltaA.IsZero() || deltaB.IsZero() {
		return zeroDelta(rChange, rDiv), nil
	}

	return Delta{DeltaA: deltaA, DeltaB: deltaB, RChange: rChange, RDiv: rDiv}, nil
}

// ScaleDelta executes only fracDelta (1e18 = all) of d. The added leg rounds
// up and the released leg rounds down.
func ScaleDelta(d Delta, fracDelta *uint256.Int) (Delta, error) {
	if fracDelta.Eq(EPoolSF) || d.IsZero() {
		return d, nil
	}
	roundA, roundB := Up, Down
	if d.RChange == 0 {
		roundA, roundB = Down, Up
	}
	deltaA, err := MulDiv(d.DeltaA, fracDelta, EPoolSF, roundA)
	if err != nil {
		return Delta{}, err
	}
	deltaB, err := MulDiv(d.DeltaB, fracDelta, EPoolSF, roundB)
	if err != nil {
		return Delta{}, err
	}
	if deltaA.IsZero() || deltaB.IsZero() {
		return zeroDelta(d.RChange, d.RDiv), nil
	}
	return Delta{DeltaA: deltaA, DeltaB: deltaB, RChange: d.RChange, RDiv: d.RDiv}, nil
}

// Flows sums the tranche deltas into amounts entering and leaving the pool.
type Flows struct {
	InA  *uint256.Int
	OutA *uint256.Int
	InB  *uint256.Int
	OutB *uint256.Int
}

// SumFlows accumulates per-tranche deltas.
func SumFlows(ds []Delta) (Flows, error) {
	f := Flows{InA: Zero(), OutA: Zero(), InB: Zero(), OutB: Zero()}
	var err error
	for _, d := range ds {
		if d.RChange == 1 {
			if f.InA, err = Add(f.InA, d.DeltaA); err != nil {
				return Flows{}, err
			}
			if f.OutB, err = Add(f.OutB, d.DeltaB); err != nil {
				return Flows{}, err
			}
			continue
		}
		if f.OutA, err = Add(f.OutA, d.DeltaA); err != nil {
			return Flows{}, err
		}
		if f.InB, err = Add(f.InB, d.DeltaB); err != nil {
			return Flows{}, err
		}
	}
	return f, nil
}

// Net collapses flows into a single pool-wide delta. Flows that do not
// resolve into one asset in and the other out net to zero.
func (f Flows) Net(rDiv *uint256.Int) Delta {
	switch {
	case f.InA.Gt(f.OutA) && f.OutB.Gt(f.InB):
		return Delta{
			DeltaA:  new(uint256.Int).Sub(f.InA, f.OutA),
			DeltaB:  new(uint256.Int).Sub(f.OutB, f.InB),
			RChange: 1,
			RDiv:    rDiv,
		}
	case f.OutA.Gt(f.InA) && f.InB.Gt(f.OutB):
		return Delta{
			DeltaA:  new(uint256.Int).Sub(f.OutA, f.InA),
			DeltaB:  new(uint256.Int).Sub(f.InB, f.OutB),
			RChange: 0,
			RDiv:    rDiv,
		}
	default:
		return zeroDelta(0, rDiv)
	}
}

// AggregateDelta nets the deltas of all tranches into the single trade that
// rebalances the whole pool. RDiv is the largest tranche deviation.
func AggregateDelta(ts []Tranche, rate *uint256.Int, s Scales) (Delta, error) {
	ds := make([]Delta, 0, len(ts))
	rDiv := Zero()
	for _, t := range ts {
		d, err := TrancheDelta(t, rate, s)
		if err != nil {
			return Delta{}, err
		}
		if !t.IsEmpty() {
			rDiv = Max(rDiv, d.RDiv)
		}
		ds = append(ds, d)
	}
	flows, err := SumFlows(ds)
	if err != nil {
		return Delta{}, err
	}
	return flows.Net(rDiv), nil
}
