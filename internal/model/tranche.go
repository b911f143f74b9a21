package model

import "time"

// TrancheSnapshot is the persisted state of one tranche at a point in time.
// Amounts are base-10 strings of native token units.
type TrancheSnapshot struct {
	ChainID          uint64    `json:"chain_id"`
	PoolAddress      string    `json:"pool_address"`
	EToken           string    `json:"etoken"`
	Index            int       `json:"index"`
	TargetRatio      string    `json:"target_ratio"`
	CurrentRatio     string    `json:"current_ratio"`
	ReserveA         string    `json:"reserve_a"`
	ReserveB         string    `json:"reserve_b"`
	TotalSupply      string    `json:"total_supply"`
	Rate             string    `json:"rate"`
	LastRebalancedAt uint64    `json:"last_rebalanced_at"`
	CapturedAt       time.Time `json:"captured_at"`
}

// TrancheWindowMetrics stores aggregated flows for an eToken window.
// RebalancedA and RebalancedB are signed: positive when the tranche gained
// the token.
type TrancheWindowMetrics struct {
	ChainID        uint64
	PoolAddress    string
	EToken         string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	IssueCount     uint64
	RedeemCount    uint64
	RebalanceCount uint64
	IssuedShares   string
	RedeemedShares string
	VolumeA        string
	VolumeB        string
	RebalancedA    string
	RebalancedB    string
	FeeA           string
	FeeB           string
	FeeMethod      string
}
