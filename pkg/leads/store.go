package leads

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/domain"
	"github.com/jordanlanch/leadledger/pkg/models"
)

// Store reads and writes the assignment fields of leads
type Store struct {
	db *database.Client
}

// NewStore creates a new lead store
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// CreateLeadRequest represents a lead arriving from intake
type CreateLeadRequest struct {
	Name   string            `json:"name" validate:"required"`
	Email  string            `json:"email" validate:"omitempty,email"`
	Status models.LeadStatus `json:"status"`
}

// Ownership is the locked view of a lead used while transferring it
type Ownership struct {
	LeadID     int
	AssignedTo *int
}

// Assignment holds the denormalized fields written on assignment
type Assignment struct {
	AssignedTo int
	AssignedBy int
	Notes      string
	At         time.Time
}

// Create inserts a new unassigned lead
func (s *Store) Create(ctx context.Context, req CreateLeadRequest) (*models.Lead, error) {
	status := req.Status
	if status == "" {
		status = models.StatusNew
	}
	now := time.Now().UTC()

	id, err := s.db.InsertID(ctx, s.db.Driver(), s.db.SQL().Insert(database.LeadsTable).
		Columns("name", "email", "status", "created_at").
		Values(req.Name, nullableString(req.Email), string(status), now))
	if err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	return &models.Lead{
		ID:        id,
		Name:      req.Name,
		Email:     req.Email,
		Status:    status,
		CreatedAt: now,
	}, nil
}

// SetStatus moves a lead to another pipeline stage
func (s *Store) SetStatus(ctx context.Context, id int, status models.LeadStatus) error {
	query, args := s.db.SQL().
		Update(database.LeadsTable).
		Set("status", string(status)).
		Where(entsql.EQ("id", id)).
		Query()

	n, err := database.Exec(ctx, s.db.Driver(), query, args)
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// Exists reports whether a lead with the given id exists
func (s *Store) Exists(ctx context.Context, id int) (bool, error) {
	query, args := s.db.SQL().
		Select("id").
		From(s.db.SQL().Table(database.LeadsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	found := false
	err := database.Query(ctx, s.db.Driver(), query, args, func(rows *entsql.Rows) error {
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to query lead: %w", err)
	}
	return found, nil
}

// Lock reads the current owner of a lead inside tx, holding a row lock where
// the dialect supports one. It returns nil when the lead does not exist.
func (s *Store) Lock(ctx context.Context, tx dialect.ExecQuerier, id int) (*Ownership, error) {
	sel := s.db.SQL().
		Select("id", "assigned_to").
		From(s.db.SQL().Table(database.LeadsTable)).
		Where(entsql.EQ("id", id))
	if s.db.SupportsRowLock() {
		sel.ForUpdate()
	}
	query, args := sel.Query()

	var own *Ownership
	err := database.Query(ctx, tx, query, args, func(rows *entsql.Rows) error {
		var (
			o          Ownership
			assignedTo sql.NullInt64
		)
		if err := rows.Scan(&o.LeadID, &assignedTo); err != nil {
			return err
		}
		o.AssignedTo = intPtr(assignedTo)
		own = &o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock lead: %w", err)
	}
	return own, nil
}

// Assign writes the denormalized owner fields of a lead
func (s *Store) Assign(ctx context.Context, tx dialect.ExecQuerier, id int, a Assignment) error {
	upd := s.db.SQL().
		Update(database.LeadsTable).
		Set("assigned_to", a.AssignedTo).
		Set("assigned_by", a.AssignedBy).
		Set("assigned_at", a.At)
	if a.Notes != "" {
		upd.Set("assignment_notes", a.Notes)
	} else {
		upd.SetNull("assignment_notes")
	}
	query, args := upd.Where(entsql.EQ("id", id)).Query()

	n, err := database.Exec(ctx, tx, query, args)
	if err != nil {
		return fmt.Errorf("failed to assign lead: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// Clear removes the owner fields of a lead
func (s *Store) Clear(ctx context.Context, tx dialect.ExecQuerier, id int) error {
	query, args := s.db.SQL().
		Update(database.LeadsTable).
		SetNull("assigned_to").
		SetNull("assigned_by").
		SetNull("assigned_at").
		SetNull("assignment_notes").
		Where(entsql.EQ("id", id)).
		Query()

	n, err := database.Exec(ctx, tx, query, args)
	if err != nil {
		return fmt.Errorf("failed to unassign lead: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// Get returns a lead with its owner and delegator names
func (s *Store) Get(ctx context.Context, id int) (*models.Lead, error) {
	sel, l := s.detailSelector()
	query, args := sel.Where(entsql.EQ(l.C("id"), id)).Query()

	var lead *models.Lead
	err := database.Query(ctx, s.db.Driver(), query, args, func(rows *entsql.Rows) error {
		v, err := scanLead(rows)
		lead = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}
	if lead == nil {
		return nil, domain.NewNotFoundError("lead")
	}
	return lead, nil
}

// ListByAssignee returns the leads owned by a worker, newest first. A nil
// status returns every stage.
func (s *Store) ListByAssignee(ctx context.Context, workerID int, status *models.LeadStatus) ([]models.Lead, error) {
	sel, l := s.detailSelector()
	pred := entsql.EQ(l.C("assigned_to"), workerID)
	if status != nil {
		pred = entsql.And(pred, entsql.EQ(l.C("status"), string(*status)))
	}
	query, args := sel.
		Where(pred).
		OrderBy(entsql.Desc(l.C("created_at")), entsql.Desc(l.C("id"))).
		Query()

	out := []models.Lead{}
	err := database.Query(ctx, s.db.Driver(), query, args, func(rows *entsql.Rows) error {
		v, err := scanLead(rows)
		if err != nil {
			return err
		}
		out = append(out, *v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return out, nil
}

func (s *Store) detailSelector() (*entsql.Selector, *entsql.SelectTable) {
	b := s.db.SQL()
	l := b.Table(database.LeadsTable).As("l")
	owner := b.Table(database.WorkersTable).As("wt")
	delegator := b.Table(database.WorkersTable).As("wb")

	sel := b.Select(
		l.C("id"), l.C("name"), l.C("email"), l.C("status"),
		l.C("assigned_to"), owner.C("name"),
		l.C("assigned_at"),
		l.C("assigned_by"), delegator.C("name"),
		l.C("assignment_notes"), l.C("created_at"),
	).
		From(l).
		LeftJoin(owner).On(l.C("assigned_to"), owner.C("id")).
		LeftJoin(delegator).On(l.C("assigned_by"), delegator.C("id"))
	return sel, l
}

func scanLead(rows *entsql.Rows) (*models.Lead, error) {
	var (
		lead           models.Lead
		email          sql.NullString
		status         string
		assignedTo     sql.NullInt64
		assignedToName sql.NullString
		assignedAt     sql.NullTime
		assignedBy     sql.NullInt64
		assignedByName sql.NullString
		notes          sql.NullString
	)
	if err := rows.Scan(
		&lead.ID, &lead.Name, &email, &status,
		&assignedTo, &assignedToName,
		&assignedAt,
		&assignedBy, &assignedByName,
		&notes, &lead.CreatedAt,
	); err != nil {
		return nil, err
	}

	lead.Email = email.String
	lead.Status = models.LeadStatus(status)
	lead.AssignedTo = intPtr(assignedTo)
	lead.AssignedToName = assignedToName.String
	if assignedAt.Valid {
		t := assignedAt.Time
		lead.AssignedAt = &t
	}
	lead.AssignedBy = intPtr(assignedBy)
	lead.AssignedByName = assignedByName.String
	lead.AssignmentNotes = notes.String
	return &lead, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	id := int(v.Int64)
	return &id
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
