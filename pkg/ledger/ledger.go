package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/models"
)

// Ledger is the append-only history of lead ownership intervals. Records are
// never updated except to close them, and never deleted.
type Ledger struct {
	db *database.Client
}

// New creates a ledger on top of the database client
func New(db *database.Client) *Ledger {
	return &Ledger{db: db}
}

// OpenRequest describes a new ownership interval
type OpenRequest struct {
	LeadID     int
	AssignedTo int
	AssignedBy int
	Notes      string
	Reason     models.AssignmentReason
	At         time.Time
}

// Open appends an open interval for the lead and returns its id
func (l *Ledger) Open(ctx context.Context, tx dialect.ExecQuerier, req OpenRequest) (int, error) {
	var notes any
	if req.Notes != "" {
		notes = req.Notes
	}

	id, err := l.db.InsertID(ctx, tx, l.db.SQL().Insert(database.HistoryTable).
		Columns("lead_id", "assigned_to", "assigned_by", "notes", "reason", "assigned_at").
		Values(req.LeadID, req.AssignedTo, req.AssignedBy, notes, string(req.Reason), req.At))
	if err != nil {
		return 0, fmt.Errorf("failed to open assignment record: %w", err)
	}
	return id, nil
}

// CloseOpen closes every open interval of the lead at the given time and
// returns how many were closed. Closed records are left untouched.
func (l *Ledger) CloseOpen(ctx context.Context, tx dialect.ExecQuerier, leadID int, at time.Time) (int64, error) {
	query, args := l.db.SQL().
		Update(database.HistoryTable).
		Set("unassigned_at", at).
		Where(entsql.And(
			entsql.EQ("lead_id", leadID),
			entsql.IsNull("unassigned_at"),
		)).
		Query()

	n, err := database.Exec(ctx, tx, query, args)
	if err != nil {
		return 0, fmt.Errorf("failed to close assignment record: %w", err)
	}
	return n, nil
}

// OpenOwner returns the worker named by the lead's open interval, if any
func (l *Ledger) OpenOwner(ctx context.Context, tx dialect.ExecQuerier, leadID int) (int, bool, error) {
	query, args := l.db.SQL().
		Select("assigned_to").
		From(l.db.SQL().Table(database.HistoryTable)).
		Where(entsql.And(
			entsql.EQ("lead_id", leadID),
			entsql.IsNull("unassigned_at"),
		)).
		OrderBy(entsql.Desc("id")).
		Limit(1).
		Query()

	var (
		owner int
		found bool
	)
	err := database.Query(ctx, tx, query, args, func(rows *entsql.Rows) error {
		found = true
		return rows.Scan(&owner)
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to load open assignment record: %w", err)
	}
	return owner, found, nil
}

// History returns every interval of a lead, most recent first, with worker
// names resolved.
func (l *Ledger) History(ctx context.Context, leadID int) ([]models.AssignmentRecord, error) {
	b := l.db.SQL()
	h := b.Table(database.HistoryTable).As("h")
	owner := b.Table(database.WorkersTable).As("wt")
	delegator := b.Table(database.WorkersTable).As("wb")

	query, args := b.Select(
		h.C("id"), h.C("lead_id"),
		h.C("assigned_to"), owner.C("name"),
		h.C("assigned_by"), delegator.C("name"),
		h.C("notes"), h.C("reason"), h.C("assigned_at"), h.C("unassigned_at"),
	).
		From(h).
		LeftJoin(owner).On(h.C("assigned_to"), owner.C("id")).
		LeftJoin(delegator).On(h.C("assigned_by"), delegator.C("id")).
		Where(entsql.EQ(h.C("lead_id"), leadID)).
		OrderBy(entsql.Desc(h.C("assigned_at")), entsql.Desc(h.C("id"))).
		Query()

	records := []models.AssignmentRecord{}
	err := database.Query(ctx, l.db.Driver(), query, args, func(rows *entsql.Rows) error {
		var (
			r              models.AssignmentRecord
			assignedToName sql.NullString
			assignedBy     sql.NullInt64
			assignedByName sql.NullString
			notes          sql.NullString
			reason         string
			unassignedAt   sql.NullTime
		)
		if err := rows.Scan(
			&r.ID, &r.LeadID,
			&r.AssignedTo, &assignedToName,
			&assignedBy, &assignedByName,
			&notes, &reason, &r.AssignedAt, &unassignedAt,
		); err != nil {
			return err
		}

		r.AssignedToName = assignedToName.String
		if assignedBy.Valid {
			id := int(assignedBy.Int64)
			r.AssignedBy = &id
		}
		r.AssignedByName = assignedByName.String
		r.Notes = notes.String
		r.Reason = models.AssignmentReason(reason)
		if unassignedAt.Valid {
			t := unassignedAt.Time
			r.UnassignedAt = &t
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment history: %w", err)
	}
	return records, nil
}
