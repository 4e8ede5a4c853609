package workload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/leadledger/pkg/authz"
	"github.com/jordanlanch/leadledger/pkg/cache"
	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/domain"
	"github.com/jordanlanch/leadledger/pkg/leads"
	"github.com/jordanlanch/leadledger/pkg/logger"
	"github.com/jordanlanch/leadledger/pkg/metrics"
	"github.com/jordanlanch/leadledger/pkg/models"
	"github.com/jordanlanch/leadledger/pkg/workers"
)

const (
	cacheName     = "workload"
	generationKey = "workload:gen"
	rollupPattern = "workload:rollup:*"

	// DefaultCacheTTL bounds how stale a cached rollup can be.
	DefaultCacheTTL = 30 * time.Second
)

// Cache stores encoded workload rollups under a generation counter
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Aggregator serves the read-only ownership views
type Aggregator struct {
	db      *database.Client
	guard   *authz.Guard
	leads   *leads.Store
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     logger.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithCache caches team workload rollups for ttl
func WithCache(c Cache, ttl time.Duration) Option {
	return func(a *Aggregator) {
		a.cache = c
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithMetrics records cache hit and miss counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithLogger sets the aggregator logger
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// NewAggregator creates a new workload aggregator
func NewAggregator(db *database.Client, opts ...Option) *Aggregator {
	a := &Aggregator{
		db:    db,
		guard: authz.NewGuard(workers.NewStore(db)),
		leads: leads.NewStore(db),
		ttl:   DefaultCacheTTL,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetTeamWorkload returns per-worker lead counts by status. Super admins see
// every worker; admins see the workers of their client.
func (a *Aggregator) GetTeamWorkload(ctx context.Context, actorID int) ([]models.WorkloadRow, error) {
	p, err := a.guard.Authorize(ctx, actorID, authz.OpViewWorkload)
	if err != nil {
		return nil, err
	}
	if !p.Scope.Unscoped && p.Scope.ClientID == nil {
		return []models.WorkloadRow{}, nil
	}

	// Rollups are keyed by the generation read before the query. A mutation
	// that commits while the query runs bumps the generation, so a late
	// write lands on a key no reader asks for again.
	var key string
	if a.cache != nil {
		gen, err := a.generation(ctx)
		if err != nil {
			a.log.Warn("Workload cache generation read failed", "error", err)
		} else {
			key = cacheKey(gen, p.Scope)
		}
	}
	if key != "" {
		var rows []models.WorkloadRow
		err := a.cache.GetJSON(ctx, key, &rows)
		switch {
		case err == nil:
			a.metrics.RecordCacheHit(cacheName)
			return rows, nil
		case errors.Is(err, cache.ErrMiss):
			a.metrics.RecordCacheMiss(cacheName)
		default:
			a.log.Warn("Workload cache read failed", "key", key, "error", err)
		}
	}

	rows, err := a.query(ctx, p.Scope)
	if err != nil {
		a.log.Error("Team workload query failed", "error", err, "actor_id", actorID)
		return nil, domain.NewInfraError("fetch team workload", err)
	}

	if key != "" {
		if err := a.cache.SetJSON(ctx, key, rows, a.ttl); err != nil {
			a.log.Warn("Workload cache write failed", "key", key, "error", err)
		}
	}
	return rows, nil
}

// GetMyLeads returns the actor's leads, newest first, optionally filtered by
// status.
func (a *Aggregator) GetMyLeads(ctx context.Context, actorID int, status string) ([]models.Lead, error) {
	p, err := a.guard.Authorize(ctx, actorID, authz.OpViewOwnLeads)
	if err != nil {
		return nil, err
	}

	var filter *models.LeadStatus
	if status != "" {
		st, err := models.ParseLeadStatus(status)
		if err != nil {
			return nil, domain.NewInvalidStateError(fmt.Sprintf("unknown status %q", status))
		}
		filter = &st
	}

	list, err := a.leads.ListByAssignee(ctx, p.ID(), filter)
	if err != nil {
		a.log.Error("My leads query failed", "error", err, "actor_id", actorID)
		return nil, domain.NewInfraError("fetch assigned leads", err)
	}
	return list, nil
}

// Invalidate retires every cached rollup by bumping the generation, then
// deletes the retired entries. Failures are logged; entries expire on their
// own after the TTL.
func (a *Aggregator) Invalidate(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if _, err := a.cache.Incr(ctx, generationKey); err != nil {
		a.log.Warn("Workload cache generation bump failed", "error", err)
	}
	if _, err := a.cache.DeletePattern(ctx, rollupPattern); err != nil {
		a.log.Warn("Workload cache invalidation failed", "error", err)
	}
}

func (a *Aggregator) generation(ctx context.Context) (int64, error) {
	raw, err := a.cache.Get(ctx, generationKey)
	if errors.Is(err, cache.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid workload cache generation %q: %w", raw, err)
	}
	return gen, nil
}

func cacheKey(gen int64, scope authz.Scope) string {
	if scope.Unscoped {
		return fmt.Sprintf("workload:rollup:%d:all", gen)
	}
	return fmt.Sprintf("workload:rollup:%d:client:%d", gen, *scope.ClientID)
}

func (a *Aggregator) query(ctx context.Context, scope authz.Scope) ([]models.WorkloadRow, error) {
	b := a.db.SQL()
	w := b.Table(database.WorkersTable).As("w")
	l := b.Table(database.LeadsTable).As("l")

	countStatus := func(st models.LeadStatus, alias string) string {
		return entsql.As(fmt.Sprintf("COUNT(CASE WHEN %s = '%s' THEN 1 END)", l.C("status"), st), alias)
	}

	sel := b.Select(
		w.C("id"), w.C("name"), w.C("email"), w.C("role"),
		entsql.As(entsql.Count(l.C("id")), "total_leads"),
		countStatus(models.StatusNew, "new_leads"),
		countStatus(models.StatusContacted, "contacted_leads"),
		countStatus(models.StatusQualified, "qualified_leads"),
		countStatus(models.StatusProposalSent, "proposal_sent_leads"),
		countStatus(models.StatusConverted, "converted_leads"),
	).
		From(w).
		LeftJoin(l).On(w.C("id"), l.C("assigned_to")).
		GroupBy(w.C("id"), w.C("name"), w.C("email"), w.C("role")).
		OrderBy(entsql.Desc("total_leads"), w.C("id"))
	if !scope.Unscoped {
		sel.Where(entsql.EQ(w.C("client_id"), *scope.ClientID))
	}
	query, args := sel.Query()

	rows := []models.WorkloadRow{}
	err := database.Query(ctx, a.db.Driver(), query, args, func(r *entsql.Rows) error {
		var (
			row  models.WorkloadRow
			role string
		)
		if err := r.Scan(
			&row.Worker.ID, &row.Worker.Name, &row.Worker.Email, &role,
			&row.TotalLeads, &row.New, &row.Contacted, &row.Qualified, &row.ProposalSent, &row.Converted,
		); err != nil {
			return err
		}
		row.Worker.Role, _ = models.ParseRole(role)
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
