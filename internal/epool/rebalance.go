package epool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
)

// plannedDelta is the trade one tranche takes part in during a rebalance.
type plannedDelta struct {
	tranche *tranche
	full    epmath.Delta
	scaled  epmath.Delta
}

// eligible applies the rebalance policy to one tranche.
func (p *Pool) eligible(t *tranche, rDiv *uint256.Int, now uint64) bool {
	deviated := !rDiv.Lt(p.rebalanceMinRDiv)
	elapsed := epmath.Elapsed(now, t.lastRebalancedAt, p.rebalanceInterval)
	if p.rebalanceMode == RebalanceModeAnd {
		return deviated && elapsed
	}
	return deviated || elapsed
}

// plan computes the scaled delta of every eligible tranche. The returned
// rDiv is the largest deviation over all non-empty tranches.
func (p *Pool) plan(rate, fracDelta *uint256.Int, now uint64) ([]plannedDelta, *uint256.Int, error) {
	var planned []plannedDelta
	rDiv := epmath.Zero()
	for _, addr := range p.order {
		t := p.tranches[addr]
		full, err := epmath.TrancheDelta(t.math(), rate, p.scales)
		if err != nil {
			return nil, nil, err
		}
		if !t.math().IsEmpty() {
			rDiv = epmath.Max(rDiv, full.RDiv)
		}
		if full.IsZero() || !p.eligible(t, full.RDiv, now) {
			continue
		}
		scaled, err := epmath.ScaleDelta(full, fracDelta)
		if err != nil {
			return nil, nil, err
		}
		if scaled.IsZero() {
			continue
		}
		planned = append(planned, plannedDelta{tranche: t, full: full, scaled: scaled})
	}
	return planned, rDiv, nil
}

func flowsOf(planned []plannedDelta) (epmath.Flows, error) {
	ds := make([]epmath.Delta, 0, len(planned))
	for _, pd := range planned {
		ds = append(ds, pd.scaled)
	}
	return epmath.SumFlows(ds)
}

// RebalanceDelta returns the pool-wide trade a full rebalance would execute
// now, counting only eligible tranches.
func (p *Pool) RebalanceDelta() (epmath.Delta, error) {
	rate, err := p.GetRate()
	if err != nil {
		return epmath.Delta{}, err
	}
	planned, rDiv, err := p.plan(rate, epmath.EPoolSF, p.env.Now())
	if err != nil {
		return epmath.Delta{}, err
	}
	flows, err := flowsOf(planned)
	if err != nil {
		return epmath.Delta{}, err
	}
	return flows.Net(rDiv), nil
}

// Rebalance moves every eligible tranche fracDelta of the way to its target
// ratio. The caller supplies the net added asset and receives the net
// released asset at the oracle rate. No fee is charged.
func (p *Pool) Rebalance(caller common.Address, fracDelta *uint256.Int) (epmath.Delta, error) {
	if fracDelta == nil || fracDelta.Gt(epmath.EPoolSF) {
		return epmath.Delta{}, ErrFracDeltaAboveOne
	}

	var result epmath.Delta
	err := p.env.Atomic(func() error {
		rate, err := p.GetRate()
		if err != nil {
			return err
		}
		now := p.env.Now()
		planned, rDiv, err := p.plan(rate, fracDelta, now)
		if err != nil {
			return err
		}
		flows, err := flowsOf(planned)
		if err != nil {
			return err
		}
		result = flows.Net(rDiv)
		if len(planned) == 0 {
			return nil
		}

		for _, pd := range planned {
			if err := p.applyDelta(pd, now); err != nil {
				return err
			}
		}
		if err := p.settle(caller, flows); err != nil {
			return err
		}

		p.logger.Info("rebalanced",
			zap.String("pool", p.address.Hex()),
			zap.Int("tranches", len(planned)),
			zap.String("delta_a", result.DeltaA.Dec()),
			zap.String("delta_b", result.DeltaB.Dec()),
			zap.Uint8("r_change", result.RChange),
			zap.String("r_div", result.RDiv.Dec()),
		)
		return p.events.Emit("RebalancedPool", result.DeltaA, result.DeltaB, result.RChange, result.RDiv)
	})
	if err != nil {
		return epmath.Delta{}, err
	}
	return result, nil
}

func (p *Pool) applyDelta(pd plannedDelta, now uint64) error {
	t, d := pd.tranche, pd.scaled
	var reserveA, reserveB *uint256.Int
	var err error
	if d.RChange == 1 {
		if reserveA, err = epmath.Add(t.reserveA, d.DeltaA); err != nil {
			return err
		}
		if reserveB, err = epmath.Sub(t.reserveB, d.DeltaB); err != nil {
			return ErrInsufficientLiquidity
		}
	} else {
		if reserveA, err = epmath.Sub(t.reserveA, d.DeltaA); err != nil {
			return ErrInsufficientLiquidity
		}
		if reserveB, err = epmath.Add(t.reserveB, d.DeltaB); err != nil {
			return err
		}
	}
	p.setUint(&t.reserveA, reserveA)
	p.setUint(&t.reserveB, reserveB)
	p.setTimestamp(&t.lastRebalancedAt, now)
	return p.events.Emit("RebalancedTranche", t.eToken.Address(), d.DeltaA, d.DeltaB, d.RChange, pd.full.RDiv)
}

// settle nets the flows per asset against the caller.
func (p *Pool) settle(caller common.Address, f epmath.Flows) error {
	switch {
	case f.InA.Gt(f.OutA):
		if err := p.tokenA.TransferFrom(p.address, caller, p.address, new(uint256.Int).Sub(f.InA, f.OutA)); err != nil {
			return err
		}
	case f.OutA.Gt(f.InA):
		if err := p.tokenA.Transfer(p.address, caller, new(uint256.Int).Sub(f.OutA, f.InA)); err != nil {
			return err
		}
	}
	switch {
	case f.InB.Gt(f.OutB):
		if err := p.tokenB.TransferFrom(p.address, caller, p.address, new(uint256.Int).Sub(f.InB, f.OutB)); err != nil {
			return err
		}
	case f.OutB.Gt(f.InB):
		if err := p.tokenB.Transfer(p.address, caller, new(uint256.Int).Sub(f.OutB, f.InB)); err != nil {
			return err
		}
	}
	return nil
}
