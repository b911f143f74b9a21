package txn

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"exposurePool/internal/model"
)

// Env is the execution environment shared by every engine component. It
// journals state changes so that a failed call leaves no trace, assigns
// contract addresses and collects emitted logs.
//
// Env is not safe for concurrent use except through Submit.
type Env struct {
	mu sync.Mutex

	chainID uint64
	clock   Clock
	logger  *zap.Logger

	journal []func()
	depth   int
	pending []model.LogRecord
	logs    []model.LogRecord
	txSeq   uint64
	nonces  map[common.Address]uint64
}

// NewEnv creates an environment for chainID driven by clock.
func NewEnv(chainID uint64, clock Clock, logger *zap.Logger) *Env {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		chainID: chainID,
		clock:   clock,
		logger:  logger,
		nonces:  make(map[common.Address]uint64),
	}
}

// ChainID returns the chain id stamped on emitted logs.
func (e *Env) ChainID() uint64 {
	return e.chainID
}

// Now returns the current block time.
func (e *Env) Now() uint64 {
	return e.clock.Now()
}

// Record registers undo to run if the enclosing Atomic call fails.
// Outside of Atomic the change is final and undo is dropped.
func (e *Env) Record(undo func()) {
	if e.depth == 0 {
		return
	}
	e.journal = append(e.journal, undo)
}

// Atomic runs fn and reverts every journaled change and pending log when it
// returns an error. Calls nest; the outermost call commits.
func (e *Env) Atomic(fn func() error) (err error) {
	journalMark := len(e.journal)
	logMark := len(e.pending)
	e.depth++
	defer func() {
		e.depth--
		if r := recover(); r != nil {
			e.revert(journalMark, logMark)
			panic(r)
		}
		if err != nil {
			e.revert(journalMark, logMark)
			return
		}
		if e.depth == 0 {
			e.commit()
		}
	}()
	return fn()
}

// Submit serializes fn against other submitted calls and runs it atomically.
func (e *Env) Submit(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Atomic(fn)
}

func (e *Env) revert(journalMark, logMark int) {
	for i := len(e.journal) - 1; i >= journalMark; i-- {
		e.journal[i]()
	}
	e.journal = e.journal[:journalMark]
	e.pending = e.pending[:logMark]
}

func (e *Env) commit() {
	e.journal = e.journal[:0]
	if len(e.pending) == 0 {
		return
	}
	e.txSeq++
	blockHash := e.hash("block", e.txSeq)
	txHash := e.hash("tx", e.txSeq)
	ts := e.clock.Now()
	base := uint64(len(e.logs))
	for i := range e.pending {
		lr := e.pending[i]
		lr.ChainID = e.chainID
		lr.BlockNumber = e.txSeq
		lr.BlockHash = blockHash
		lr.TxHash = txHash
		lr.LogIndex = base + uint64(i)
		lr.Timestamp = ts
		e.logs = append(e.logs, lr)
	}
	e.logger.Debug("committed",
		zap.Uint64("block", e.txSeq),
		zap.Int("logs", len(e.pending)),
	)
	e.pending = e.pending[:0]
}

func (e *Env) hash(kind string, seq uint64) string {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], e.chainID)
	binary.BigEndian.PutUint64(buf[8:], seq)
	return crypto.Keccak256Hash([]byte(kind), buf).Hex()
}

// Emit appends a log to the current call. Block fields are filled on commit.
func (e *Env) Emit(lr model.LogRecord) {
	e.pending = append(e.pending, lr)
	if e.depth == 0 {
		e.commit()
	}
}

// Logs returns a copy of every committed log.
func (e *Env) Logs() []model.LogRecord {
	out := make([]model.LogRecord, len(e.logs))
	copy(out, e.logs)
	return out
}

// DrainLogs returns the committed logs and clears them.
func (e *Env) DrainLogs() []model.LogRecord {
	out := e.logs
	e.logs = nil
	return out
}

// Deploy returns the next contract address created by deployer.
func (e *Env) Deploy(deployer common.Address) common.Address {
	nonce := e.nonces[deployer]
	e.nonces[deployer] = nonce + 1
	e.Record(func() { e.nonces[deployer] = nonce })
	return crypto.CreateAddress(deployer, nonce)
}
