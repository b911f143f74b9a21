package aggregate

import (
	"fmt"
	"math/big"

	"exposurePool/internal/model"
)

// Accumulator holds aggregate values for an eToken window.
type Accumulator struct {
	ChainID        uint64
	PoolAddress    string
	EToken         string
	WindowStart    uint64
	WindowEnd      uint64
	IssueCount     uint64
	RedeemCount    uint64
	RebalanceCount uint64
	IssuedShares   *big.Int
	RedeemedShares *big.Int
	VolumeA        *big.Int
	VolumeB        *big.Int
	RebalancedA    *big.Int
	RebalancedB    *big.Int
	FeeA           *big.Int
	FeeB           *big.Int
	FeeRateKnown   bool
	LastTS         uint64
}

func NewAccumulator(event model.TypedEvent, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:        event.ChainID,
		PoolAddress:    event.Address,
		EToken:         event.Field("eToken"),
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		IssuedShares:   big.NewInt(0),
		RedeemedShares: big.NewInt(0),
		VolumeA:        big.NewInt(0),
		VolumeB:        big.NewInt(0),
		RebalancedA:    big.NewInt(0),
		RebalancedB:    big.NewInt(0),
		FeeA:           big.NewInt(0),
		FeeB:           big.NewInt(0),
		LastTS:         event.Timestamp,
	}
}

// AddEvent folds a tranche event into the window. feeRate is the pool's
// redemption fee rate at the time of the event, or nil when unknown.
func (a *Accumulator) AddEvent(event model.TypedEvent, feeRate *big.Int) error {
	if event.Timestamp >= a.LastTS {
		a.LastTS = event.Timestamp
	}

	switch event.EventName {
	case eventIssued:
		amount, amountA, amountB, err := flowAmounts(event)
		if err != nil {
			return err
		}
		a.IssuedShares.Add(a.IssuedShares, amount)
		a.VolumeA.Add(a.VolumeA, amountA)
		a.VolumeB.Add(a.VolumeB, amountB)
		a.IssueCount++
	case eventRedeemed:
		amount, amountA, amountB, err := flowAmounts(event)
		if err != nil {
			return err
		}
		a.RedeemedShares.Add(a.RedeemedShares, amount)
		a.VolumeA.Add(a.VolumeA, amountA)
		a.VolumeB.Add(a.VolumeB, amountB)
		if feeRate != nil {
			a.FeeRateKnown = true
			a.FeeA.Add(a.FeeA, feeFromNet(amountA, feeRate))
			a.FeeB.Add(a.FeeB, feeFromNet(amountB, feeRate))
		}
		a.RedeemCount++
	case eventRebalancedTranche:
		return a.applyRebalance(event)
	}
	return nil
}

func (a *Accumulator) applyRebalance(event model.TypedEvent) error {
	deltaA, err := parseBigInt(event.Field("deltaA"))
	if err != nil {
		return err
	}
	deltaB, err := parseBigInt(event.Field("deltaB"))
	if err != nil {
		return err
	}
	switch event.Field("rChange") {
	case "1":
		a.RebalancedA.Add(a.RebalancedA, deltaA)
		a.RebalancedB.Sub(a.RebalancedB, deltaB)
	case "0":
		a.RebalancedA.Sub(a.RebalancedA, deltaA)
		a.RebalancedB.Add(a.RebalancedB, deltaB)
	default:
		return fmt.Errorf("invalid rChange: %q", event.Field("rChange"))
	}
	a.RebalanceCount++
	return nil
}

func flowAmounts(event model.TypedEvent) (*big.Int, *big.Int, *big.Int, error) {
	amount, err := parseBigInt(event.Field("amount"))
	if err != nil {
		return nil, nil, nil, err
	}
	amountA, err := parseBigInt(event.Field("amountA"))
	if err != nil {
		return nil, nil, nil, err
	}
	amountB, err := parseBigInt(event.Field("amountB"))
	if err != nil {
		return nil, nil, nil, err
	}
	return amount, amountA, amountB, nil
}
