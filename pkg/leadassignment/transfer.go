package leadassignment

import (
	"context"

	"entgo.io/ent/dialect"

	"github.com/jordanlanch/leadledger/pkg/authz"
	"github.com/jordanlanch/leadledger/pkg/leads"
	"github.com/jordanlanch/leadledger/pkg/ledger"
	"github.com/jordanlanch/leadledger/pkg/models"
)

type transferOutcome int

const (
	outcomeAssigned transferOutcome = iota
	outcomeUnchanged
	outcomeMissing
	outcomeOutOfScope
)

func (o transferOutcome) String() string {
	switch o {
	case outcomeAssigned:
		return "assigned"
	case outcomeUnchanged:
		return "unchanged"
	case outcomeMissing:
		return "missing"
	case outcomeOutOfScope:
		return "out_of_scope"
	default:
		return "unknown"
	}
}

type transferRequest struct {
	leadID int
	target int
	notes  string
	// An empty reason resolves to manual for an unowned lead and
	// reassignment for an owned one.
	reason models.AssignmentReason
}

type transferResult struct {
	leadID   int
	outcome  transferOutcome
	previous *int
	reason   models.AssignmentReason
}

// transfer moves one lead to req.target inside tx: lock the lead, close the
// open interval, write the owner fields, open a new interval. Missing leads
// and leads owned outside the principal's scope are reported through the
// outcome rather than as errors so bulk callers can skip them.
func (s *Service) transfer(ctx context.Context, tx dialect.Tx, p *authz.Principal, req transferRequest) (transferResult, error) {
	res := transferResult{leadID: req.leadID}

	own, err := s.leads.Lock(ctx, tx, req.leadID)
	if err != nil {
		return res, err
	}
	if own == nil {
		res.outcome = outcomeMissing
		return res, nil
	}
	res.previous = own.AssignedTo

	sameOwner := own.AssignedTo != nil && *own.AssignedTo == req.target
	switch {
	case sameOwner:
		openOwner, ok, err := s.ledger.OpenOwner(ctx, tx, req.leadID)
		if err != nil {
			return res, err
		}
		if ok && openOwner == req.target {
			res.outcome = outcomeUnchanged
			return res, nil
		}
		// The owner fields are right but the open interval is gone or names
		// someone else; reopen it for the owner below.
	case own.AssignedTo != nil:
		inScope, err := s.ownerInScope(ctx, tx, p, *own.AssignedTo)
		if err != nil {
			return res, err
		}
		if !inScope {
			res.outcome = outcomeOutOfScope
			return res, nil
		}
	}

	now := s.now()

	// Close whatever is open, even for an unowned lead, so a stray open
	// interval can never block the new one.
	closed, err := s.ledger.CloseOpen(ctx, tx, req.leadID, now)
	if err != nil {
		return res, err
	}
	switch {
	case own.AssignedTo != nil && closed == 0:
		s.anomaly(ledger.KindMissingOpen, req.leadID, *own.AssignedTo)
	case sameOwner && closed > 0:
		s.anomaly(ledger.KindOwnerMismatch, req.leadID, *own.AssignedTo)
	case own.AssignedTo == nil && closed > 0:
		s.anomaly(ledger.KindStrayOpen, req.leadID, 0)
	}

	if err := s.leads.Assign(ctx, tx, req.leadID, leads.Assignment{
		AssignedTo: req.target,
		AssignedBy: p.ID(),
		Notes:      req.notes,
		At:         now,
	}); err != nil {
		return res, err
	}

	res.reason = req.reason
	if res.reason == "" {
		res.reason = models.ReasonManual
		if own.AssignedTo != nil {
			res.reason = models.ReasonReassignment
		}
	}

	if _, err := s.ledger.Open(ctx, tx, ledger.OpenRequest{
		LeadID:     req.leadID,
		AssignedTo: req.target,
		AssignedBy: p.ID(),
		Notes:      req.notes,
		Reason:     res.reason,
		At:         now,
	}); err != nil {
		return res, err
	}

	res.outcome = outcomeAssigned
	return res, nil
}
