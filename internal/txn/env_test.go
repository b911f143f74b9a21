package txn

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"exposurePool/internal/model"
)

func TestAtomicRevertsJournalAndLogs(t *testing.T) {
	env := NewEnv(31337, NewManualClock(1000), nil)
	balance := 10

	set := func(v int) {
		prev := balance
		balance = v
		env.Record(func() { balance = prev })
	}

	err := env.Atomic(func() error {
		set(20)
		env.Emit(model.LogRecord{Topics: []string{"0x01"}})
		return env.Atomic(func() error {
			set(30)
			env.Emit(model.LogRecord{Topics: []string{"0x02"}})
			return errors.New("boom")
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if balance != 10 {
		t.Fatalf("balance not reverted: %d", balance)
	}
	if logs := env.Logs(); len(logs) != 0 {
		t.Fatalf("expected no committed logs, got %d", len(logs))
	}
}

func TestAtomicInnerFailureKeepsOuterChanges(t *testing.T) {
	env := NewEnv(1, NewManualClock(1000), nil)
	value := 0
	err := env.Atomic(func() error {
		value = 1
		env.Record(func() { value = 0 })
		_ = env.Atomic(func() error {
			value = 2
			env.Record(func() { value = 1 })
			return errors.New("inner")
		})
		return nil
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}
	if value != 1 {
		t.Fatalf("expected inner change reverted only, got %d", value)
	}
}

func TestCommitStampsLogs(t *testing.T) {
	clock := NewManualClock(1700000000)
	env := NewEnv(5, clock, nil)
	for i := 0; i < 2; i++ {
		err := env.Submit(func() error {
			env.Emit(model.LogRecord{Address: "0xa"})
			env.Emit(model.LogRecord{Address: "0xb"})
			return nil
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		clock.Advance(12)
	}

	logs := env.DrainLogs()
	if len(logs) != 4 {
		t.Fatalf("expected 4 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 1 || logs[2].BlockNumber != 2 {
		t.Fatalf("block numbers mismatch: %d %d", logs[0].BlockNumber, logs[2].BlockNumber)
	}
	if logs[0].TxHash != logs[1].TxHash || logs[1].TxHash == logs[2].TxHash {
		t.Fatalf("tx hashes not grouped per call")
	}
	if logs[3].LogIndex != 3 || logs[3].Timestamp != 1700000012 || logs[3].ChainID != 5 {
		t.Fatalf("unexpected stamp: %+v", logs[3])
	}
	if len(env.Logs()) != 0 {
		t.Fatalf("drain did not clear logs")
	}
}

func TestDeployRevertsNonce(t *testing.T) {
	env := NewEnv(1, nil, nil)
	deployer := common.HexToAddress("0x00000000000000000000000000000000000000d0")

	first := env.Deploy(deployer)
	_ = env.Atomic(func() error {
		env.Deploy(deployer)
		return errors.New("fail")
	})
	second := env.Deploy(deployer)
	if first == second {
		t.Fatalf("expected distinct addresses")
	}

	fresh := NewEnv(1, nil, nil)
	fresh.Deploy(deployer)
	if want := fresh.Deploy(deployer); want != second {
		t.Fatalf("nonce not reverted: %s != %s", second.Hex(), want.Hex())
	}
}
