package controller

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"exposurePool/internal/events"
	"exposurePool/internal/txn"
)

var (
	dao      = common.HexToAddress("0x00000000000000000000000000000000000000da")
	guardian = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func TestRoles(t *testing.T) {
	env := txn.NewEnv(1, nil, nil)
	c := New(env, common.HexToAddress("0xc0"), dao, nil)

	if c.Guardian() != dao || c.FeesOwner() != dao {
		t.Fatalf("roles should default to dao")
	}
	if err := c.SetGuardian(user, guardian); !errors.Is(err, ErrNotDao) {
		t.Fatalf("expected not dao, got %v", err)
	}
	if err := c.SetGuardian(dao, guardian); err != nil {
		t.Fatalf("set guardian: %v", err)
	}
	if !c.IsDaoOrGuardian(guardian) || c.IsDao(guardian) {
		t.Fatalf("guardian role mismatch")
	}
	if err := c.SetFeesOwner(guardian, user); !errors.Is(err, ErrNotDao) {
		t.Fatalf("guardian must not set fees owner, got %v", err)
	}
	if err := c.SetFeesOwner(dao, user); err != nil || c.FeesOwner() != user {
		t.Fatalf("set fees owner: %v", err)
	}
	if err := c.SetDao(dao, user); err != nil || !c.IsDao(user) || c.IsDao(dao) {
		t.Fatalf("set dao: %v", err)
	}
}

func TestPausedIssuance(t *testing.T) {
	env := txn.NewEnv(1, nil, nil)
	c := New(env, common.HexToAddress("0xc0"), dao, nil)
	if err := c.SetGuardian(dao, guardian); err != nil {
		t.Fatalf("set guardian: %v", err)
	}
	if err := c.SetPausedIssuance(user, true); !errors.Is(err, ErrNotDaoOrGuardian) {
		t.Fatalf("expected not dao or guardian, got %v", err)
	}
	env.DrainLogs()
	if err := c.SetPausedIssuance(guardian, true); err != nil || !c.PausedIssuance() {
		t.Fatalf("pause: %v", err)
	}

	logs := env.DrainLogs()
	decoder, err := events.NewDecoder(events.Controller)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one log, got %d", len(logs))
	}
	event, err := decoder.Decode(logs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventName != "SetPausedIssuance" || event.Field("pausedIssuance") != "true" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
