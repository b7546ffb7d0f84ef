// Package lifecycle stages milestone submissions off-chain and turns them
// into ledger blocks once an administrator approves them.
//
// A submission moves from pending_approval to approved exactly once. The
// staged record is only updated after its block is committed, so an
// approved submission always points at a real block.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/store"
)

var (
	// ErrNotFound is returned when a submission id does not exist.
	ErrNotFound = errors.New("lifecycle: submission not found")

	// ErrAlreadyApproved is returned when approving a submission twice.
	ErrAlreadyApproved = errors.New("lifecycle: submission already approved")
)

// Submission is a staged milestone awaiting approval.
type Submission struct {
	ID                 string `json:"id"`
	ProjectID          string `json:"projectId"`
	DefinedMilestoneID string `json:"definedMilestoneId,omitempty"`
	Description        string `json:"description,omitempty"`
	ProofHash          string `json:"proofHash,omitempty"`
	From               string `json:"from,omitempty"`
	Status             string `json:"status"`
	Timestamp          string `json:"timestamp"`

	ApprovedBy  string `json:"approvedBy,omitempty"`
	ApprovedAt  string `json:"approvedAt,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber int64  `json:"blockNumber,omitempty"`
}

// SubmitRequest is a contractor's milestone submission.
type SubmitRequest struct {
	ProjectID          string `json:"projectId"`
	DefinedMilestoneID string `json:"definedMilestoneId,omitempty"`
	Description        string `json:"description"`
	ProofHash          string `json:"proofHash,omitempty"`
	From               string `json:"from,omitempty"`
}

// Appender commits payloads to the chain. *ledger.Writer implements it.
type Appender interface {
	Append(ctx context.Context, p ledger.Payload) (*ledger.Block, error)
}

// Service runs the submission lifecycle.
type Service struct {
	store  store.Store
	chain  Appender
	clock  func() time.Time
	logger *slog.Logger
}

// NewService creates a lifecycle service.
func NewService(s store.Store, chain Appender) *Service {
	return &Service{
		store:  s,
		chain:  chain,
		clock:  time.Now,
		logger: slog.Default().With("component", "lifecycle"),
	}
}

// WithClock overrides the clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Submit stages a pending submission. It never touches the chain.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, fmt.Errorf("%w: projectId is required", ledger.ErrValidation)
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ledger.ErrValidation)
	}

	sub := &Submission{
		ProjectID:          req.ProjectID,
		DefinedMilestoneID: req.DefinedMilestoneID,
		Description:        req.Description,
		ProofHash:          req.ProofHash,
		From:               req.From,
		Status:             ledger.StatusPending,
		Timestamp:          ledger.FormatTimestamp(s.clock()),
	}
	rec, err := toRecord(sub)
	if err != nil {
		return nil, err
	}
	delete(rec, "id")

	id, err := s.store.Append(ctx, ledger.SubmissionsCollection, rec)
	if err != nil {
		s.logger.ErrorContext(ctx, "submission write failed", "project_id", req.ProjectID, "error", err)
		return nil, fmt.Errorf("lifecycle: stage submission: %w", err)
	}
	sub.ID = id
	s.logger.InfoContext(ctx, "milestone submitted", "id", id, "project_id", req.ProjectID, "from", req.From)
	return sub, nil
}

// Approve commits a pending submission to the milestones category and then
// marks it approved with a back-reference to the new block.
//
// If the append fails the submission stays pending. If the block is
// committed but a later write fails, the block is returned with the error.
func (s *Service) Approve(ctx context.Context, id, approver string) (*ledger.Block, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, fmt.Errorf("%w: approver is required", ledger.ErrValidation)
	}

	doc, err := s.store.Get(ctx, ledger.SubmissionsCollection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("lifecycle: load submission %s: %w", id, err)
	}
	if doc.Fields.String("status") == ledger.StatusApproved {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyApproved, id)
	}

	approvedAt := ledger.FormatTimestamp(s.clock())
	payload, err := approvedPayload(doc.Fields, approver, approvedAt)
	if err != nil {
		return nil, err
	}

	block, err := s.chain.Append(ctx, payload)
	if block == nil {
		s.logger.ErrorContext(ctx, "approval append failed, submission left pending", "id", id, "error", err)
		return nil, err
	}
	appendErr := err

	update := store.Record{
		"status":      ledger.StatusApproved,
		"approvedBy":  approver,
		"approvedAt":  approvedAt,
		"txHash":      block.Hash,
		"blockNumber": block.SequenceNumber,
	}
	if err := s.store.Update(ctx, ledger.SubmissionsCollection, id, update); err != nil {
		s.logger.ErrorContext(ctx, "block committed but submission not marked approved",
			"id", id, "block_number", block.SequenceNumber, "hash", block.Hash, "error", err)
		return block, errors.Join(appendErr, fmt.Errorf("lifecycle: mark submission %s approved: %w", id, err))
	}

	s.logger.InfoContext(ctx, "milestone approved", "id", id, "approver", approver, "block_number", block.SequenceNumber)
	return block, appendErr
}

// approvedPayload carries every staged field onto the chain, with the
// staging time moved to submittedAt.
func approvedPayload(staged store.Record, approver, approvedAt string) (ledger.ApprovedMilestone, error) {
	fields := make(map[string]any, len(staged))
	for k, v := range staged {
		switch k {
		case "id", "timestamp", "txHash", "blockNumber":
			continue
		}
		fields[k] = v
	}
	p, err := ledger.ParsePayload(ledger.CategoryMilestones, fields)
	if err != nil {
		return ledger.ApprovedMilestone{}, err
	}
	m := p.(ledger.ApprovedMilestone)
	m.SubmittedAt = staged.String("timestamp")
	m.ApprovedBy = approver
	m.ApprovedAt = approvedAt
	m.Status = ledger.StatusApproved
	return m, nil
}

// Get returns one submission.
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	doc, err := s.store.Get(ctx, ledger.SubmissionsCollection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return fromDocument(*doc)
}

// List returns submissions in staging order, filtered by status unless
// status is empty.
func (s *Service) List(ctx context.Context, status string) ([]*Submission, error) {
	docs, err := s.store.QueryOrderedByTimestamp(ctx, ledger.SubmissionsCollection, store.Ascending, 0)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list submissions: %w", err)
	}
	out := make([]*Submission, 0, len(docs))
	for _, d := range docs {
		if status != "" && d.Fields.String("status") != status {
			continue
		}
		sub, err := fromDocument(d)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// ListPending returns submissions awaiting approval.
func (s *Service) ListPending(ctx context.Context) ([]*Submission, error) {
	return s.List(ctx, ledger.StatusPending)
}

func toRecord(sub *Submission) (store.Record, error) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: encode submission: %w", err)
	}
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("lifecycle: encode submission: %w", err)
	}
	return rec, nil
}

func fromDocument(doc store.Document) (*Submission, error) {
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: decode submission %s: %w", doc.ID, err)
	}
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("lifecycle: decode submission %s: %w", doc.ID, err)
	}
	sub.ID = doc.ID
	return &sub, nil
}
