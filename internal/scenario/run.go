package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"exposurePool/internal/epmath"
	"exposurePool/internal/fault"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int
	Action string
	Detail string
	Err    error
}

// ErrUnexpectedOutcome reports a step whose error did not match expect_error.
var ErrUnexpectedOutcome = fault.New(fault.State, "scenario: unexpected step outcome")

// deadlineWindow is added to the block time for periphery deadlines.
const deadlineWindow = 600

func (w *World) now() time.Time {
	return time.Unix(int64(w.Env.Now()), 0).UTC()
}

// Run executes every step in order. A step whose outcome differs from its
// expect_error stops the run.
func (w *World) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(w.Scenario.Steps))
	for i, step := range w.Scenario.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var detail string
		err := w.Env.Submit(func() error {
			var err error
			detail, err = w.apply(step)
			return err
		})
		res := StepResult{Index: i, Action: step.Action, Detail: detail, Err: err}
		results = append(results, res)

		log := w.logger.With(zap.Int("step", i), zap.String("action", step.Action))
		switch {
		case step.ExpectErr == "" && err != nil:
			log.Error("step failed", zap.Error(err))
			return results, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		case step.ExpectErr != "" && err == nil:
			log.Error("step succeeded unexpectedly", zap.String("expect_error", step.ExpectErr))
			return results, fmt.Errorf("step %d (%s): expected %q: %w", i, step.Action, step.ExpectErr, ErrUnexpectedOutcome)
		case step.ExpectErr != "" && !strings.Contains(err.Error(), step.ExpectErr):
			log.Error("step failed differently", zap.Error(err), zap.String("expect_error", step.ExpectErr))
			return results, fmt.Errorf("step %d (%s): got %q, expected %q: %w", i, step.Action, err, step.ExpectErr, ErrUnexpectedOutcome)
		case err != nil:
			log.Info("step failed as expected", zap.Error(err))
		default:
			log.Info("step done", zap.String("detail", detail))
		}
	}
	return results, nil
}

func (w *World) account(name string) (common.Address, error) {
	if name == "" {
		return w.Dao, nil
	}
	addr, ok := w.Accounts[name]
	if !ok {
		return common.Address{}, fmt.Errorf("unknown account %s", name)
	}
	return addr, nil
}

func (w *World) requirePeriphery() error {
	if w.Periphery == nil {
		return fmt.Errorf("scenario has no pair, periphery actions are unavailable")
	}
	return nil
}

func (w *World) apply(step Step) (string, error) {
	caller, err := w.account(step.Account)
	if err != nil {
		return "", err
	}
	eToken := w.ETokens[step.Tranche]
	decA, decB := w.TokenA.Decimals(), w.TokenB.Decimals()

	switch step.Action {
	case "issue", "redeem":
		amount, err := parseFixed(step.Amount)
		if err != nil {
			return "", err
		}
		op := w.Pool.IssueExact
		if step.Action == "redeem" {
			op = w.Pool.RedeemExact
		}
		a, b, err := op(caller, eToken, amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s, %s %s", FormatUnits(a, decA), w.TokenA.Symbol(), FormatUnits(b, decB), w.TokenB.Symbol()), nil

	case "issue_for_max_a", "issue_for_max_b":
		if err := w.requirePeriphery(); err != nil {
			return "", err
		}
		amount, err := parseFixed(step.Amount)
		if err != nil {
			return "", err
		}
		inA := step.Action == "issue_for_max_a"
		limit, err := parseUnits(step.Limit, pick(inA, decA, decB))
		if err != nil {
			return "", err
		}
		deadline := w.Env.Now() + deadlineWindow
		if inA {
			return "", w.Periphery.IssueForMaxTokenA(caller, w.Pool, eToken, amount, limit, deadline)
		}
		return "", w.Periphery.IssueForMaxTokenB(caller, w.Pool, eToken, amount, limit, deadline)

	case "redeem_for_min_a", "redeem_for_min_b":
		if err := w.requirePeriphery(); err != nil {
			return "", err
		}
		amount, err := parseFixed(step.Amount)
		if err != nil {
			return "", err
		}
		inA := step.Action == "redeem_for_min_a"
		limit, err := parseUnits(step.Limit, pick(inA, decA, decB))
		if err != nil {
			return "", err
		}
		deadline := w.Env.Now() + deadlineWindow
		if inA {
			return "", w.Periphery.RedeemForMinTokenA(caller, w.Pool, eToken, amount, limit, deadline)
		}
		return "", w.Periphery.RedeemForMinTokenB(caller, w.Pool, eToken, amount, limit, deadline)

	case "set_rate":
		if w.Oracle == nil {
			return "", fmt.Errorf("set_rate needs the in-memory oracle")
		}
		answer, err := parseFixed(step.Answer)
		if err != nil {
			return "", err
		}
		w.Oracle.SetAnswer(answer)
		return step.Answer, nil

	case "advance":
		if w.Clock == nil {
			return "", fmt.Errorf("advance needs the manual clock")
		}
		w.Clock.Advance(step.Seconds)
		return fmt.Sprintf("t=%d", w.Clock.Now()), nil

	case "rebalance":
		frac := epmath.EPoolSF.Clone()
		if step.Frac != "" {
			if frac, err = parseFixed(step.Frac); err != nil {
				return "", err
			}
		}
		d, err := w.Pool.Rebalance(caller, frac)
		if err != nil {
			return "", err
		}
		return formatDelta(d, decA, decB), nil

	case "flash_rebalance":
		if err := w.requirePeriphery(); err != nil {
			return "", err
		}
		var slippage *uint256.Int
		if step.Slippage != "" {
			if slippage, err = parseFixed(step.Slippage); err != nil {
				return "", err
			}
		}
		return "", w.Periphery.RebalanceWithFlashSwap(caller, w.Pool, slippage)

	case "upkeep":
		if w.Adapter == nil {
			return "", fmt.Errorf("scenario has no keeper adapter")
		}
		needed, data, err := w.Adapter.CheckUpkeep()
		if err != nil {
			return "", err
		}
		if !needed {
			return "", fmt.Errorf("upkeep not needed")
		}
		return "performed", w.Adapter.PerformUpkeep(caller, data)

	case "transfer_fees":
		return "", w.Pool.TransferFees(caller)

	case "pause_issuance", "resume_issuance":
		return "", w.Controller.SetPausedIssuance(caller, step.Action == "pause_issuance")

	default:
		return "", fmt.Errorf("unknown action %q", step.Action)
	}
}

func pick(a bool, x, y uint8) uint8 {
	if a {
		return x
	}
	return y
}

func formatDelta(d epmath.Delta, decA, decB uint8) string {
	direction := "A->B"
	if d.RChange == 1 {
		direction = "B->A"
	}
	return fmt.Sprintf("%s deltaA=%s deltaB=%s rDiv=%s", direction, FormatUnits(d.DeltaA, decA), FormatUnits(d.DeltaB, decB), FormatUnits(d.RDiv, 18))
}
