// Package epoch derives withdrawal eligibility for epoch-based credit vaults.
//
// Nothing is stored: every state is recomputed from the latest epoch data and
// the current time, so a state only changes when one of them changes.
package epoch

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	// ErrInvalidAmount is returned when a claim has no positive amount.
	ErrInvalidAmount = errors.New("claim amount must be positive")
	// ErrNotClaimable is returned when a claim is attempted before the request matured.
	ErrNotClaimable = errors.New("withdraw request is not claimable")
)

// Status is the withdrawal eligibility of a request.
type Status int

const (
	// Pending means the request is queued and its deadline has not passed.
	Pending Status = iota
	// Waiting means an instant request is blocked until the next window opens.
	Waiting
	// Claimable means the request can be claimed now.
	Claimable
)

var statusNames = map[Status]string{
	Pending:   "pending",
	Waiting:   "waiting",
	Claimable: "claimable",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, candidate := range statusNames {
		if candidate == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// Data is the epoch timing state of a credit vault.
type Data struct {
	IsEpochRunning          bool          `json:"isEpochRunning"`
	EpochStart              time.Time     `json:"epochStart"`
	EpochEnd                time.Time     `json:"epochEnd"`
	EpochDuration           time.Duration `json:"epochDuration"`
	BufferPeriod            time.Duration `json:"bufferPeriod"`
	InstantWithdrawDelay    time.Duration `json:"instantWithdrawDelay"`
	InstantWithdrawDeadline time.Time     `json:"instantWithdrawDeadline"`
	AllowInstantWithdraw    bool          `json:"allowInstantWithdraw"`
	PendingWithdraws        *big.Int      `json:"pendingWithdraws"`
}

// NewData fills EpochStart from the end and duration.
func NewData(d Data) *Data {
	if d.EpochStart.IsZero() && !d.EpochEnd.IsZero() {
		d.EpochStart = d.EpochEnd.Add(-d.EpochDuration)
	}
	return &d
}

// WithdrawRequest is a queued withdrawal.
type WithdrawRequest struct {
	Amount  *big.Int `json:"amount"`
	Instant bool     `json:"instant"`
}

// ClaimState is the derived eligibility of a request. Deadline is nil when it
// cannot be determined.
type ClaimState struct {
	Status   Status     `json:"status"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Evaluate derives the claim state of req at now.
func Evaluate(now time.Time, data *Data, req WithdrawRequest) ClaimState {
	if data == nil {
		return ClaimState{Status: Pending}
	}
	if req.Instant {
		return evaluateInstant(now, data)
	}
	return evaluateStandard(data)
}

func evaluateInstant(now time.Time, data *Data) ClaimState {
	if !data.IsEpochRunning || !data.AllowInstantWithdraw {
		deadline := data.InstantWithdrawDeadline
		if !deadline.After(now) {
			deadline = data.EpochEnd.Add(data.BufferPeriod)
		}
		return ClaimState{Status: Waiting, Deadline: timePtr(deadline)}
	}

	deadline := data.InstantWithdrawDeadline
	status := Pending
	if !now.Before(deadline) {
		status = Claimable
	}
	return ClaimState{Status: status, Deadline: timePtr(deadline)}
}

func evaluateStandard(data *Data) ClaimState {
	if !data.IsEpochRunning && (data.PendingWithdraws == nil || data.PendingWithdraws.Sign() <= 0) {
		return ClaimState{Status: Claimable}
	}
	if data.IsEpochRunning {
		return ClaimState{Status: Pending, Deadline: timePtr(data.EpochEnd)}
	}
	return ClaimState{
		Status:   Pending,
		Deadline: timePtr(data.EpochEnd.Add(data.EpochDuration).Add(data.BufferPeriod)),
	}
}

// ValidateClaim checks that amount can be claimed in state.
func ValidateClaim(amount *big.Int, state ClaimState) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if state.Status != Claimable {
		return fmt.Errorf("%w: status %s", ErrNotClaimable, state.Status)
	}
	return nil
}

// Remaining is the countdown to the state's deadline, zero when the deadline
// is unknown or already passed.
func Remaining(now time.Time, state ClaimState) time.Duration {
	if state.Deadline == nil {
		return 0
	}
	left := state.Deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func timePtr(t time.Time) *time.Time {
	return &t
}
