package requests

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

// Kind discriminates the three request flavours. They share one state machine.
type Kind string

const (
	KindPeer     Kind = "peer"
	KindMerchant Kind = "merchant"
	KindSplit    Kind = "split"
)

// Status is the request state. Accepted and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Action is the payer's answer to a pending request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

var (
	ErrNotFound        = errors.New("request not found")
	ErrForbidden       = errors.New("only the payer may respond to a request")
	ErrAlreadyResolved = errors.New("request already resolved")
	ErrSelfRequest     = errors.New("requester and payer must differ")
	ErrNotAddressable  = errors.New("payer cannot be addressed by this requester")
	ErrNotMerchant     = errors.New("merchant requests require a merchant account")
	ErrInvalidKind     = errors.New("invalid request kind")
	ErrInvalidAction   = errors.New("action must be accept or reject")
	ErrNoParticipants  = errors.New("split requires at least one participant")

	// ErrInitiatorParticipant rejects a split that lists its own initiator.
	ErrInitiatorParticipant = errors.New("initiator cannot be a split participant")

	// ErrDuplicateParticipant rejects a split listing the same account twice.
	ErrDuplicateParticipant = errors.New("participant listed more than once")

	// ErrPayerInsufficientFunds is the pre-flight rejection on accept. It
	// matches ledger.ErrInsufficientFunds under errors.Is.
	ErrPayerInsufficientFunds = fmt.Errorf("payer balance does not cover the request: %w", ledger.ErrInsufficientFunds)
)

// Request asks a payer to move Amount to the requester.
type Request struct {
	ID            string
	Kind          Kind
	RequesterID   string
	PayerID       string
	Amount        decimal.Decimal
	Status        Status
	BatchID       string // shared by the shares of one split
	TransactionID string // set once accepted
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	PayerID     string
	RequesterID string
	Kind        Kind
	Status      Status
}

// ParseKind validates a wire value.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPeer, KindMerchant, KindSplit:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// ParseStatus validates a wire value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}

func (k Kind) ledgerKind() ledger.Kind {
	switch k {
	case KindMerchant:
		return ledger.KindMerchantRequest
	case KindSplit:
		return ledger.KindSplitShare
	default:
		return ledger.KindPeerRequest
	}
}

func (f Filter) matches(r Request) bool {
	return (f.PayerID == "" || f.PayerID == r.PayerID) &&
		(f.RequesterID == "" || f.RequesterID == r.RequesterID) &&
		(f.Kind == "" || f.Kind == r.Kind) &&
		(f.Status == "" || f.Status == r.Status)
}
