package oracle

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"exposurePool/internal/fault"
)

var (
	ErrNoAnswer = fault.New(fault.State, "oracle: no answer")
)

// Aggregator supplies the TokenA price in TokenB, 1e18 scaled.
type Aggregator interface {
	Address() common.Address
	LatestAnswer() (*uint256.Int, error)
}

// Static is an aggregator whose answer is set by hand.
type Static struct {
	address common.Address

	mu     sync.RWMutex
	answer *uint256.Int
}

// NewStatic returns an aggregator at address answering answer.
func NewStatic(address common.Address, answer *uint256.Int) *Static {
	s := &Static{address: address}
	s.SetAnswer(answer)
	return s
}

// Address returns the aggregator address.
func (s *Static) Address() common.Address {
	return s.address
}

// SetAnswer replaces the answer.
func (s *Static) SetAnswer(answer *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if answer == nil {
		s.answer = nil
		return
	}
	s.answer = answer.Clone()
}

// LatestAnswer returns the current answer.
func (s *Static) LatestAnswer() (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.answer == nil || s.answer.IsZero() {
		return nil, ErrNoAnswer
	}
	return s.answer.Clone(), nil
}
