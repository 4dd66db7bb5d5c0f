package liquidator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openalpha/radiant-lend/x/lending/types"
)

// TxSubmitter defines the interface for submitting liquidation transactions
type TxSubmitter interface {
	// SubmitLiquidation broadcasts a MsgLiquidate to the chain
	SubmitLiquidation(ctx context.Context, msg *types.MsgLiquidate) error

	// GetStatus returns the submitter status
	GetStatus() SubmitterStatus
}

// SubmitterStatus represents the status of a submitter
type SubmitterStatus struct {
	Connected         bool
	LastSubmitTime    time.Time
	LastError         string
	TotalSubmissions  int64
	FailedSubmissions int64
}

// MockSubmitter is a mock implementation for testing
type MockSubmitter struct {
	mu              sync.Mutex
	submitted       []*types.MsgLiquidate
	status          SubmitterStatus
	simulateFailure bool
}

// NewMockSubmitter creates a new mock submitter
func NewMockSubmitter() *MockSubmitter {
	return &MockSubmitter{
		submitted: make([]*types.MsgLiquidate, 0),
		status: SubmitterStatus{
			Connected: true,
		},
	}
}

// SubmitLiquidation records a liquidation message (mock implementation)
func (s *MockSubmitter) SubmitLiquidation(ctx context.Context, msg *types.MsgLiquidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.simulateFailure {
		s.status.FailedSubmissions++
		s.status.LastError = "simulated failure"
		return fmt.Errorf("simulated failure")
	}

	s.submitted = append(s.submitted, msg)
	s.status.TotalSubmissions++
	s.status.LastSubmitTime = time.Now()

	log.Printf("[MockSubmitter] Submitted liquidation: borrower=%s debt=%s collateral=%s repay=%s",
		msg.Borrower, msg.DebtAssetID, msg.CollateralAssetID, msg.RepayAmount)

	return nil
}

// GetStatus returns the mock submitter status
func (s *MockSubmitter) GetStatus() SubmitterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetSimulateFailure toggles failure simulation (for testing)
func (s *MockSubmitter) SetSimulateFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulateFailure = fail
}

// GetSubmitted returns all submitted messages (for testing)
func (s *MockSubmitter) GetSubmitted() []*types.MsgLiquidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*types.MsgLiquidate, len(s.submitted))
	copy(result, s.submitted)
	return result
}
