package authz

import (
	"context"
	"fmt"

	"github.com/jordanlanch/leadledger/pkg/domain"
	"github.com/jordanlanch/leadledger/pkg/models"
)

// Operation is an action guarded by role
type Operation string

const (
	OpAssign       Operation = "assign"
	OpUnassign     Operation = "unassign"
	OpBulkAssign   Operation = "bulk_assign"
	OpViewWorkload Operation = "view_workload"
	OpViewHistory  Operation = "view_history"
	OpViewOwnLeads Operation = "view_own_leads"
)

var managerOps = []Operation{OpAssign, OpUnassign, OpBulkAssign, OpViewWorkload, OpViewHistory, OpViewOwnLeads}
var memberOps = []Operation{OpViewHistory, OpViewOwnLeads}

// policy is the closed role table. Roles missing from it, including
// RoleUnknown, are granted nothing.
var policy = map[models.Role]map[Operation]bool{
	models.RoleSuperAdmin:  set(managerOps),
	models.RoleAdmin:       set(managerOps),
	models.RoleClientAdmin: set(memberOps),
	models.RoleClientUser:  set(memberOps),
	models.RoleAgent:       set(memberOps),
}

func set(ops []Operation) map[Operation]bool {
	m := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// Allowed reports whether a role may perform an operation
func Allowed(role models.Role, op Operation) bool {
	return policy[role][op]
}

// Scope limits which workers a principal may act on
type Scope struct {
	Unscoped bool
	ClientID *int
}

// Allows reports whether the worker is inside the scope. A scoped principal
// without a client sees nobody.
func (s Scope) Allows(w *models.Worker) bool {
	if s.Unscoped {
		return true
	}
	if w == nil || s.ClientID == nil || w.ClientID == nil {
		return false
	}
	return *s.ClientID == *w.ClientID
}

// Principal is an authenticated, authorized actor
type Principal struct {
	Worker *models.Worker
	Scope  Scope
}

// ID returns the actor's worker id
func (p *Principal) ID() int {
	return p.Worker.ID
}

// Role returns the actor's role
func (p *Principal) Role() models.Role {
	return p.Worker.Role
}

// WorkerLookup resolves an actor id to its stored worker
type WorkerLookup interface {
	Get(ctx context.Context, id int) (*models.Worker, error)
}

// Guard authorizes actors against the role table. Role and client come from
// the stored worker, never from the caller.
type Guard struct {
	workers WorkerLookup
}

// NewGuard creates a new guard
func NewGuard(workers WorkerLookup) *Guard {
	return &Guard{workers: workers}
}

// Authorize resolves the actor and checks that its role permits op
func (g *Guard) Authorize(ctx context.Context, actorID int, op Operation) (*Principal, error) {
	if actorID <= 0 {
		return nil, domain.NewUnauthenticatedError()
	}

	worker, err := g.workers.Get(ctx, actorID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewUnauthenticatedError()
		}
		return nil, domain.NewInfraError("resolve actor", err)
	}
	if !worker.Active {
		return nil, domain.NewUnauthenticatedError()
	}

	if !Allowed(worker.Role, op) {
		return nil, domain.NewPermissionDeniedError(fmt.Sprintf("insufficient permissions to %s", describe(op)))
	}

	return &Principal{
		Worker: worker,
		Scope: Scope{
			Unscoped: worker.Role == models.RoleSuperAdmin,
			ClientID: worker.ClientID,
		},
	}, nil
}

func describe(op Operation) string {
	switch op {
	case OpAssign:
		return "assign leads"
	case OpUnassign:
		return "unassign leads"
	case OpBulkAssign:
		return "bulk assign leads"
	case OpViewWorkload:
		return "view team workload"
	case OpViewHistory:
		return "view assignment history"
	case OpViewOwnLeads:
		return "view assigned leads"
	default:
		return string(op)
	}
}
