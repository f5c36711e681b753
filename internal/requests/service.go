package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/logging"
	"github.com/congo-pay/p2p_wallet/internal/notification"
	"github.com/congo-pay/p2p_wallet/internal/social"
)

// Observer records request lifecycle events.
type Observer interface {
	ObserveRequest(kind, status string)
}

// Service owns the request state machine. It never writes balances itself;
// acceptance goes through the ledger engine.
type Service struct {
	repo     Repository
	accounts *accounts.Service
	engine   *ledger.Engine
	graph    social.Graph
	notifier notification.Notifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo     Repository
	Accounts *accounts.Service
	Engine   *ledger.Engine
	Graph    social.Graph
	Notifier notification.Notifier
	Observer Observer
	Logger   *slog.Logger
}

// NewService builds the request lifecycle manager.
func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		accounts: d.Accounts,
		engine:   d.Engine,
		graph:    d.Graph,
		notifier: d.Notifier,
		observer: d.Observer,
		logger:   d.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.graph == nil {
		s.graph = social.AllowAll{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// CreateInput describes a peer or merchant request.
type CreateInput struct {
	Kind        Kind
	RequesterID string
	PayerRef    string // account id or username
	Amount      decimal.Decimal
}

// Create validates and stores a pending request. Balances are not touched.
func (s *Service) Create(ctx context.Context, input CreateInput) (Request, error) {
	var relation social.Relation
	switch input.Kind {
	case KindPeer:
		relation = social.RelationFriend
	case KindMerchant:
		relation = social.RelationSubscriber
	default:
		return Request{}, fmt.Errorf("%w: %q cannot be created directly", ErrInvalidKind, input.Kind)
	}
	if err := ledger.ValidateAmount(input.Amount); err != nil {
		return Request{}, err
	}

	requester, err := s.accounts.Get(ctx, input.RequesterID)
	if err != nil {
		return Request{}, err
	}
	payer, err := s.accounts.Resolve(ctx, input.PayerRef)
	if err != nil {
		return Request{}, err
	}
	if requester.ID == payer.ID {
		return Request{}, ErrSelfRequest
	}
	if input.Kind == KindMerchant && !requester.IsMerchant {
		return Request{}, ErrNotMerchant
	}
	ok, err := s.graph.CanAddress(ctx, relation, requester.ID, payer.ID)
	if err != nil {
		return Request{}, err
	}
	if !ok {
		return Request{}, ErrNotAddressable
	}

	req := Request{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		RequesterID: requester.ID,
		PayerID:     payer.ID,
		Amount:      input.Amount,
		Status:      StatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return Request{}, err
	}

	s.created(ctx, req, requester.Username)
	return req, nil
}

// SplitInput describes a split-payment request batch.
type SplitInput struct {
	InitiatorID     string
	ParticipantRefs []string
	Total           decimal.Decimal
}

// CreateSplit creates one pending share request per participant. Every
// participant is resolved before anything is stored; one bad reference
// rejects the whole batch.
func (s *Service) CreateSplit(ctx context.Context, input SplitInput) ([]Request, error) {
	if len(input.ParticipantRefs) == 0 {
		return nil, ErrNoParticipants
	}
	share, err := ledger.Share(input.Total, len(input.ParticipantRefs))
	if err != nil {
		return nil, err
	}
	initiator, err := s.accounts.Get(ctx, input.InitiatorID)
	if err != nil {
		return nil, err
	}
	participants, err := s.accounts.ResolveAll(ctx, input.ParticipantRefs)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	now := s.now()
	seen := make(map[string]struct{}, len(participants))
	reqs := make([]Request, 0, len(participants))
	for _, p := range participants {
		if p.ID == initiator.ID {
			return nil, ErrInitiatorParticipant
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, p.Username)
		}
		seen[p.ID] = struct{}{}
		reqs = append(reqs, Request{
			ID:          uuid.NewString(),
			Kind:        KindSplit,
			RequesterID: initiator.ID,
			PayerID:     p.ID,
			Amount:      share,
			Status:      StatusPending,
			BatchID:     batchID,
			CreatedAt:   now,
		})
	}
	if err := s.repo.Create(ctx, reqs...); err != nil {
		return nil, err
	}

	for _, req := range reqs {
		s.created(ctx, req, initiator.Username)
	}
	s.logger.Info("split requested",
		slog.String("batch_id", batchID),
		slog.String("initiator_id", initiator.ID),
		slog.Int("participants", len(reqs)),
		slog.String("share", ledger.Format(share)),
	)
	return reqs, nil
}

// RespondInput is a payer's answer to a request.
type RespondInput struct {
	RequestID   string
	ResponderID string
	Action      Action
}

// RespondResult carries the resolved request and, on acceptance, the ledger
// record of the payment.
type RespondResult struct {
	Request     Request
	Transaction *ledger.Transaction
	PayerBal    decimal.Decimal
}

// Respond accepts or rejects a pending request. On accept the money movement
// and the pending -> accepted flip share one ledger boundary; if the engine
// fails the request stays pending and the error is returned.
func (s *Service) Respond(ctx context.Context, input RespondInput) (RespondResult, error) {
	if input.Action != ActionAccept && input.Action != ActionReject {
		return RespondResult{}, ErrInvalidAction
	}
	req, err := s.repo.Get(ctx, input.RequestID)
	if err != nil {
		return RespondResult{}, err
	}
	if req.PayerID != input.ResponderID {
		return RespondResult{}, ErrForbidden
	}
	if req.Status != StatusPending {
		return RespondResult{}, ErrAlreadyResolved
	}

	if input.Action == ActionReject {
		at := s.now()
		if err := s.repo.Reject(ctx, req.ID, at); err != nil {
			return RespondResult{}, err
		}
		req.Status = StatusRejected
		req.ResolvedAt = &at
		s.resolved(ctx, req)
		return RespondResult{Request: req}, nil
	}

	payer, err := s.accounts.Get(ctx, req.PayerID)
	if err != nil {
		return RespondResult{}, err
	}
	if payer.Balance.LessThan(req.Amount) {
		return RespondResult{}, ErrPayerInsufficientFunds
	}

	at := s.now()
	moved, err := s.engine.Move(ctx, ledger.MoveInput{
		From:   req.PayerID,
		To:     req.RequesterID,
		Amount: req.Amount,
		Kind:   req.Kind.ledgerKind(),
		Settle: func(ctx context.Context, tx ledger.Tx, txn ledger.Transaction) error {
			return s.repo.Accept(ctx, tx, req.ID, txn.ID, at)
		},
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) && !errors.Is(err, ErrPayerInsufficientFunds) {
			err = ErrPayerInsufficientFunds
		}
		s.logger.Warn("request acceptance failed",
			slog.String("request_id", req.ID),
			slog.String("payer_id", req.PayerID),
			slog.Any("error", err),
		)
		return RespondResult{}, err
	}

	req.Status = StatusAccepted
	req.TransactionID = moved.Transaction.ID
	req.ResolvedAt = &at
	s.resolved(ctx, req)
	return RespondResult{Request: req, Transaction: &moved.Transaction, PayerBal: moved.FromBalance}, nil
}

// Get returns one request visible to the caller.
func (s *Service) Get(ctx context.Context, callerID, id string) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.PayerID != callerID && req.RequesterID != callerID {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// Incoming lists requests addressed to payerID, optionally narrowed.
func (s *Service) Incoming(ctx context.Context, payerID string, kind Kind, status Status) ([]Request, error) {
	return s.repo.List(ctx, Filter{PayerID: payerID, Kind: kind, Status: status})
}

// Outgoing lists requests created by requesterID.
func (s *Service) Outgoing(ctx context.Context, requesterID string, kind Kind) ([]Request, error) {
	return s.repo.List(ctx, Filter{RequesterID: requesterID, Kind: kind})
}

func (s *Service) created(ctx context.Context, req Request, requesterName string) {
	s.observe(req)
	s.logger.Info("request created",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("requester_id", req.RequesterID),
		slog.String("payer_id", req.PayerID),
		slog.String("amount", ledger.Format(req.Amount)),
	)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindRequestCreated,
		Destination: req.PayerID,
		Body:        fmt.Sprintf("%s requests %s from you", requesterName, ledger.Format(req.Amount)),
	})
}

func (s *Service) resolved(ctx context.Context, req Request) {
	s.observe(req)
	s.logger.Info("request resolved",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("status", string(req.Status)),
		slog.String("transaction_id", req.TransactionID),
	)
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindRequestResolved,
		Destination: req.RequesterID,
		Body:        fmt.Sprintf("Your request for %s was %s", ledger.Format(req.Amount), req.Status),
	})
}

func (s *Service) observe(req Request) {
	if s.observer != nil {
		s.observer.ObserveRequest(string(req.Kind), string(req.Status))
	}
}
