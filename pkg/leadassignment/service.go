package leadassignment

import (
	"context"
	"errors"
	"time"

	"entgo.io/ent/dialect"

	"github.com/jordanlanch/leadledger/pkg/authz"
	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/domain"
	"github.com/jordanlanch/leadledger/pkg/leads"
	"github.com/jordanlanch/leadledger/pkg/ledger"
	"github.com/jordanlanch/leadledger/pkg/logger"
	"github.com/jordanlanch/leadledger/pkg/metrics"
	"github.com/jordanlanch/leadledger/pkg/models"
	"github.com/jordanlanch/leadledger/pkg/workers"
)

// DefaultBulkAssignMax is the largest batch BulkAssign accepts by default.
const DefaultBulkAssignMax = 500

// Invalidator is notified after a committed change of ownership
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// assignmentLedger is the subset of the ledger the mutations write through
type assignmentLedger interface {
	Open(ctx context.Context, tx dialect.ExecQuerier, req ledger.OpenRequest) (int, error)
	CloseOpen(ctx context.Context, tx dialect.ExecQuerier, leadID int, at time.Time) (int64, error)
	OpenOwner(ctx context.Context, tx dialect.ExecQuerier, leadID int) (int, bool, error)
	History(ctx context.Context, leadID int) ([]models.AssignmentRecord, error)
}

// Service handles lead assignment operations.
type Service struct {
	db          *database.Client
	guard       *authz.Guard
	workers     *workers.Store
	leads       *leads.Store
	ledger      assignmentLedger
	metrics     *metrics.Metrics
	log         logger.Logger
	invalidator Invalidator
	now         func() time.Time
	bulkMax     int
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records assignment metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithInvalidator registers a hook run after every committed change
func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.invalidator = i }
}

// WithClock overrides the time source for assignment timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBulkAssignMax sets the largest accepted bulk batch
func WithBulkAssignMax(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkMax = n
		}
	}
}

// NewService creates a new lead assignment service.
func NewService(db *database.Client, opts ...Option) *Service {
	ws := workers.NewStore(db)
	s := &Service{
		db:      db,
		guard:   authz.NewGuard(ws),
		workers: ws,
		leads:   leads.NewStore(db),
		ledger:  ledger.New(db),
		log:     logger.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
		bulkMax: DefaultBulkAssignMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignLeadRequest represents a manual assignment request.
type AssignLeadRequest struct {
	LeadID     int    `json:"lead_id"`
	AssignedTo int    `json:"assigned_to"`
	Notes      string `json:"notes,omitempty" validate:"max=2000"`
	Reason     string `json:"reason,omitempty" validate:"omitempty,oneof=manual bulk reassignment system"`
}

// UnassignLeadRequest represents a request to return a lead to the pool.
type UnassignLeadRequest struct {
	LeadID int    `json:"lead_id"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// BulkAssignRequest represents a bulk assignment request.
type BulkAssignRequest struct {
	LeadIDs    []int  `json:"lead_ids"`
	AssignedTo int    `json:"assigned_to"`
	Notes      string `json:"notes,omitempty" validate:"max=2000"`
	Reason     string `json:"reason,omitempty" validate:"omitempty,oneof=manual bulk reassignment system"`
}

// AssignLead makes target the owner of a lead, closing the previous
// ownership interval and opening a new one in a single transaction.
// Assigning a lead to its current owner changes nothing.
func (s *Service) AssignLead(ctx context.Context, req AssignLeadRequest, actorID int) (*models.Lead, error) {
	if req.LeadID <= 0 || req.AssignedTo <= 0 {
		return nil, domain.NewInvalidStateError("lead_id and assigned_to are required")
	}
	p, err := s.guard.Authorize(ctx, actorID, authz.OpAssign)
	if err != nil {
		return nil, err
	}
	reason, err := parseReason(req.Reason)
	if err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, p, req.AssignedTo)
	if err != nil {
		return nil, err
	}
	if err := s.requireLead(ctx, req.LeadID); err != nil {
		return nil, err
	}

	var res transferResult
	start := time.Now()
	err = s.db.WithTx(ctx, func(tx dialect.Tx) error {
		var err error
		res, err = s.transfer(ctx, tx, p, transferRequest{
			leadID: req.LeadID,
			target: target.ID,
			notes:  req.Notes,
			reason: reason,
		})
		if err != nil {
			return err
		}
		switch res.outcome {
		case outcomeMissing:
			return domain.NewNotFoundError("lead")
		case outcomeOutOfScope:
			return domain.NewPermissionDeniedError("lead is owned by a worker outside your client scope")
		}
		return nil
	})
	s.metrics.RecordTx("assign", err, time.Since(start))
	if err != nil {
		return nil, s.fail("assign lead", err, "lead_id", req.LeadID, "assigned_to", target.ID)
	}

	if res.outcome == outcomeAssigned {
		s.metrics.RecordAssignment(string(res.reason))
		s.log.Info("Lead assigned",
			"lead_id", req.LeadID,
			"assigned_to", target.ID,
			"previous_owner", ownerValue(res.previous),
			"assigned_by", p.ID(),
			"reason", res.reason,
		)
		s.committed(ctx)
	}

	lead, err := s.leads.Get(ctx, req.LeadID)
	if err != nil {
		return nil, s.fail("load assigned lead", err, "lead_id", req.LeadID)
	}
	return lead, nil
}

// UnassignLead returns a lead to the unassigned pool, closing its open
// ownership interval. The reason is logged; the ledger keeps only the close time.
func (s *Service) UnassignLead(ctx context.Context, req UnassignLeadRequest, actorID int) error {
	if req.LeadID <= 0 {
		return domain.NewInvalidStateError("lead_id is required")
	}
	p, err := s.guard.Authorize(ctx, actorID, authz.OpUnassign)
	if err != nil {
		return err
	}
	if err := s.requireLead(ctx, req.LeadID); err != nil {
		return err
	}

	var previous int
	start := time.Now()
	err = s.db.WithTx(ctx, func(tx dialect.Tx) error {
		own, err := s.leads.Lock(ctx, tx, req.LeadID)
		if err != nil {
			return err
		}
		if own == nil {
			return domain.NewNotFoundError("lead")
		}
		if own.AssignedTo == nil {
			return domain.NewInvalidStateError("Lead is not currently assigned")
		}
		previous = *own.AssignedTo

		inScope, err := s.ownerInScope(ctx, tx, p, previous)
		if err != nil {
			return err
		}
		if !inScope {
			return domain.NewPermissionDeniedError("lead is owned by a worker outside your client scope")
		}

		closed, err := s.ledger.CloseOpen(ctx, tx, req.LeadID, s.now())
		if err != nil {
			return err
		}
		if closed == 0 {
			s.anomaly(ledger.KindMissingOpen, req.LeadID, previous)
		}
		return s.leads.Clear(ctx, tx, req.LeadID)
	})
	s.metrics.RecordTx("unassign", err, time.Since(start))
	if err != nil {
		return s.fail("unassign lead", err, "lead_id", req.LeadID)
	}

	s.metrics.RecordUnassignment()
	s.log.Info("Lead unassigned",
		"lead_id", req.LeadID,
		"previous_owner", previous,
		"unassigned_by", p.ID(),
		"reason", req.Reason,
	)
	s.committed(ctx)
	return nil
}

// BulkAssign assigns many leads to one worker in a single transaction, in
// submission order. Missing leads and leads owned outside the actor's scope
// are skipped; leads already owned by the target count as assigned. Any
// storage failure rolls back the whole batch.
func (s *Service) BulkAssign(ctx context.Context, req BulkAssignRequest, actorID int) (*models.BulkAssignResult, error) {
	if len(req.LeadIDs) == 0 {
		return nil, domain.NewInvalidStateError("lead_ids array is required")
	}
	if req.AssignedTo <= 0 {
		return nil, domain.NewInvalidStateError("assigned_to is required")
	}
	if len(req.LeadIDs) > s.bulkMax {
		return nil, domain.NewInvalidStateError("too many lead_ids in one request")
	}
	p, err := s.guard.Authorize(ctx, actorID, authz.OpBulkAssign)
	if err != nil {
		return nil, err
	}
	reason, err := parseReason(req.Reason)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = models.ReasonBulk
	}

	target, err := s.resolveTarget(ctx, p, req.AssignedTo)
	if err != nil {
		return nil, err
	}

	var results []transferResult
	start := time.Now()
	err = s.db.WithTx(ctx, func(tx dialect.Tx) error {
		results = make([]transferResult, 0, len(req.LeadIDs))
		for _, leadID := range req.LeadIDs {
			res, err := s.transfer(ctx, tx, p, transferRequest{
				leadID: leadID,
				target: target.ID,
				notes:  req.Notes,
				reason: reason,
			})
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	s.metrics.RecordTx("bulk_assign", err, time.Since(start))
	if err != nil {
		return nil, s.fail("bulk assign leads", err, "assigned_to", target.ID, "total_requested", len(req.LeadIDs))
	}

	result := &models.BulkAssignResult{TotalRequested: len(req.LeadIDs)}
	changed := false
	for _, res := range results {
		s.metrics.RecordBulkItem(res.outcome.String())
		switch res.outcome {
		case outcomeAssigned:
			result.AssignedCount++
			changed = true
			s.metrics.RecordAssignment(string(res.reason))
		case outcomeUnchanged:
			result.AssignedCount++
		case outcomeOutOfScope:
			s.log.Warn("Bulk assign skipped lead owned outside actor scope",
				"lead_id", res.leadID,
				"owner", ownerValue(res.previous),
				"actor_id", p.ID(),
			)
		}
	}

	s.log.Info("Bulk assignment completed",
		"assigned_to", target.ID,
		"assigned_by", p.ID(),
		"assigned_count", result.AssignedCount,
		"total_requested", result.TotalRequested,
	)
	if changed {
		s.committed(ctx)
	}
	return result, nil
}

// GetHistory returns every ownership interval of a lead, newest first.
func (s *Service) GetHistory(ctx context.Context, leadID int, actorID int) ([]models.AssignmentRecord, error) {
	if _, err := s.guard.Authorize(ctx, actorID, authz.OpViewHistory); err != nil {
		return nil, err
	}
	if err := s.requireLead(ctx, leadID); err != nil {
		return nil, err
	}

	records, err := s.ledger.History(ctx, leadID)
	if err != nil {
		return nil, s.fail("fetch assignment history", err, "lead_id", leadID)
	}
	return records, nil
}

// Verify checks the ledger against the current lead owners.
func (s *Service) Verify(ctx context.Context) (*ledger.Report, error) {
	return ledger.New(s.db).Verify(ctx)
}

func parseReason(raw string) (models.AssignmentReason, error) {
	if raw == "" {
		return "", nil
	}
	reason, err := models.ParseAssignmentReason(raw)
	if err != nil {
		return "", domain.NewInvalidStateError("reason must be one of manual, bulk, reassignment, system")
	}
	return reason, nil
}

// resolveTarget loads the worker a lead is being handed to and checks that
// the principal may hand work to it.
func (s *Service) resolveTarget(ctx context.Context, p *authz.Principal, workerID int) (*models.Worker, error) {
	target, err := s.workers.Get(ctx, workerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("worker")
		}
		return nil, s.fail("resolve target worker", err, "worker_id", workerID)
	}
	if !target.Active {
		return nil, domain.NewNotFoundError("worker")
	}
	if !p.Scope.Allows(target) {
		return nil, domain.NewPermissionDeniedError("target worker is outside your client scope")
	}
	return target, nil
}

func (s *Service) requireLead(ctx context.Context, leadID int) error {
	ok, err := s.leads.Exists(ctx, leadID)
	if err != nil {
		return s.fail("fetch lead", err, "lead_id", leadID)
	}
	if !ok {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

func (s *Service) ownerInScope(ctx context.Context, tx dialect.ExecQuerier, p *authz.Principal, ownerID int) (bool, error) {
	if p.Scope.Unscoped {
		return true, nil
	}
	owner, err := s.workers.GetWith(ctx, tx, ownerID)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return p.Scope.Allows(owner), nil
}

func (s *Service) anomaly(kind string, leadID, owner int) {
	s.metrics.RecordLedgerAnomaly(kind)
	s.log.Warn("Assignment ledger out of sync with lead owner",
		"kind", kind,
		"lead_id", leadID,
		"owner", owner,
	)
}

func ownerValue(id *int) any {
	if id == nil {
		return nil
	}
	return *id
}

func (s *Service) committed(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// fail passes domain errors through and wraps anything else as an
// infrastructure failure, logging the cause.
func (s *Service) fail(op string, err error, args ...any) error {
	if !domain.IsInfra(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("Assignment operation cancelled", append([]any{"op", op, "error", err}, args...)...)
	} else {
		s.log.Error("Assignment operation failed", append([]any{"op", op, "error", err}, args...)...)
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.NewInfraError(op, err)
}
