package workers

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

var columns = []string{"id", "name", "email", "role", "client_id", "active", "created_at"}

// Store reads and writes workers
type Store struct {
	db *database.Client
}

// NewStore creates a new worker store
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// CreateWorkerRequest represents a worker to be created
type CreateWorkerRequest struct {
	Name     string      `json:"name" validate:"required"`
	Email    string      `json:"email" validate:"required,email"`
	Role     models.Role `json:"role" validate:"required"`
	ClientID *int        `json:"client_id"`
}

// Create inserts a new active worker
func (s *Store) Create(ctx context.Context, req CreateWorkerRequest) (*models.Worker, error) {
	now := time.Now().UTC()
	id, err := s.db.InsertID(ctx, s.db.Driver(), s.db.SQL().Insert(database.WorkersTable).
		Columns("name", "email", "role", "client_id", "active", "created_at").
		Values(req.Name, req.Email, string(req.Role), nullableInt(req.ClientID), true, now))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	return &models.Worker{
		ID:        id,
		Name:      req.Name,
		Email:     req.Email,
		Role:      req.Role,
		ClientID:  req.ClientID,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// Get returns a worker by id
func (s *Store) Get(ctx context.Context, id int) (*models.Worker, error) {
	return s.GetWith(ctx, s.db.Driver(), id)
}

// GetWith returns a worker by id using q, typically an open transaction
func (s *Store) GetWith(ctx context.Context, q dialect.ExecQuerier, id int) (*models.Worker, error) {
	query, args := s.db.SQL().
		Select(columns...).
		From(s.db.SQL().Table(database.WorkersTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var worker *models.Worker
	err := database.Query(ctx, q, query, args, func(rows *entsql.Rows) error {
		w, err := scanWorker(rows)
		worker = w
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query worker: %w", err)
	}
	if worker == nil {
		return nil, domain.NewNotFoundError("worker")
	}
	return worker, nil
}

// SetActive enables or disables a worker
func (s *Store) SetActive(ctx context.Context, id int, active bool) error {
	query, args := s.db.SQL().
		Update(database.WorkersTable).
		Set("active", active).
		Where(entsql.EQ("id", id)).
		Query()

	n, err := database.Exec(ctx, s.db.Driver(), query, args)
	if err != nil {
		return fmt.Errorf("failed to update worker: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("worker")
	}
	return nil
}

func scanWorker(rows *entsql.Rows) (*models.Worker, error) {
	var (
		w        models.Worker
		role     string
		clientID sql.NullInt64
	)
	if err := rows.Scan(&w.ID, &w.Name, &w.Email, &role, &clientID, &w.Active, &w.CreatedAt); err != nil {
		return nil, err
	}

	// Roles this service does not know are kept as RoleUnknown and authorize nothing.
	w.Role, _ = models.ParseRole(role)
	if clientID.Valid {
		id := int(clientID.Int64)
		w.ClientID = &id
	}
	return &w, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
