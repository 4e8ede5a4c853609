package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/leadledger/pkg/database"
)

// Violation kinds reported by Verify
const (
	KindMultipleOpen   = "multiple_open"
	KindMissingOpen    = "missing_open"
	KindStrayOpen      = "stray_open"
	KindOwnerMismatch  = "owner_mismatch"
	KindInvertedPeriod = "inverted_period"
)

// Violation is one inconsistency between leads and their history
type Violation struct {
	LeadID int    `json:"lead_id"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Report is the outcome of a consistency check
type Report struct {
	LeadsChecked   int         `json:"leads_checked"`
	RecordsChecked int         `json:"records_checked"`
	Violations     []Violation `json:"violations"`
}

// OK reports whether no violations were found
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

type openRecord struct {
	id         int
	assignedTo int
}

// Verify checks that every lead's owner matches its single open interval and
// that closed intervals end after they start. Leads and history are read from
// one snapshot so a concurrent assignment cannot show up half applied.
func (l *Ledger) Verify(ctx context.Context) (*Report, error) {
	var report *Report
	err := l.db.WithSnapshot(ctx, func(q dialect.ExecQuerier) error {
		var err error
		report, err = l.verify(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (l *Ledger) verify(ctx context.Context, q dialect.ExecQuerier) (*Report, error) {
	b := l.db.SQL()
	report := &Report{Violations: []Violation{}}

	owners := map[int]*int{}
	query, args := b.Select("id", "assigned_to").From(b.Table(database.LeadsTable)).OrderBy("id").Query()
	err := database.Query(ctx, q, query, args, func(rows *entsql.Rows) error {
		var (
			id         int
			assignedTo sql.NullInt64
		)
		if err := rows.Scan(&id, &assignedTo); err != nil {
			return err
		}
		if assignedTo.Valid {
			v := int(assignedTo.Int64)
			owners[id] = &v
		} else {
			owners[id] = nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}
	report.LeadsChecked = len(owners)

	open := map[int][]openRecord{}
	query, args = b.Select("id", "lead_id", "assigned_to", "assigned_at", "unassigned_at").
		From(b.Table(database.HistoryTable)).
		OrderBy("id").
		Query()
	err = database.Query(ctx, q, query, args, func(rows *entsql.Rows) error {
		var (
			id, leadID, assignedTo int
			assignedAt             time.Time
			unassignedAt           sql.NullTime
		)
		if err := rows.Scan(&id, &leadID, &assignedTo, &assignedAt, &unassignedAt); err != nil {
			return err
		}
		report.RecordsChecked++

		if !unassignedAt.Valid {
			open[leadID] = append(open[leadID], openRecord{id: id, assignedTo: assignedTo})
			return nil
		}
		if unassignedAt.Time.Before(assignedAt) {
			report.Violations = append(report.Violations, Violation{
				LeadID: leadID,
				Kind:   KindInvertedPeriod,
				Detail: fmt.Sprintf("record %d closed at %s before it opened at %s", id, unassignedAt.Time.Format(time.RFC3339), assignedAt.Format(time.RFC3339)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment history: %w", err)
	}

	ids := make([]int, 0, len(owners))
	for id := range owners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		owner := owners[id]
		records := open[id]

		switch {
		case len(records) > 1:
			report.Violations = append(report.Violations, Violation{
				LeadID: id,
				Kind:   KindMultipleOpen,
				Detail: fmt.Sprintf("%d open records", len(records)),
			})
		case owner != nil && len(records) == 0:
			report.Violations = append(report.Violations, Violation{
				LeadID: id,
				Kind:   KindMissingOpen,
				Detail: fmt.Sprintf("assigned to worker %d without an open record", *owner),
			})
		case owner == nil && len(records) == 1:
			report.Violations = append(report.Violations, Violation{
				LeadID: id,
				Kind:   KindStrayOpen,
				Detail: fmt.Sprintf("unassigned but record %d is open", records[0].id),
			})
		case owner != nil && records[0].assignedTo != *owner:
			report.Violations = append(report.Violations, Violation{
				LeadID: id,
				Kind:   KindOwnerMismatch,
				Detail: fmt.Sprintf("assigned to worker %d but open record %d names worker %d", *owner, records[0].id, records[0].assignedTo),
			})
		}
	}

	return report, nil
}
