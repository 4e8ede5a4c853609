package ledger

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/database/dbtest"
	"github.com/jordanlanch/leadledger/pkg/leads"
	"github.com/jordanlanch/leadledger/pkg/models"
	"github.com/jordanlanch/leadledger/pkg/workers"
)

type fixture struct {
	db     *database.Client
	ledger *Ledger
	leads  *leads.Store
	admin  *models.Worker
	alice  *models.Worker
	bob    *models.Worker
	lead   *models.Lead
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	ws := workers.NewStore(db)
	ls := leads.NewStore(db)

	mk := func(name string, role models.Role) *models.Worker {
		w, err := ws.Create(ctx, workers.CreateWorkerRequest{Name: name, Email: name + "@example.com", Role: role})
		require.NoError(t, err)
		return w
	}
	lead, err := ls.Create(ctx, leads.CreateLeadRequest{Name: "Acme Corp"})
	require.NoError(t, err)

	return &fixture{
		db:     db,
		ledger: New(db),
		leads:  ls,
		admin:  mk("admin", models.RoleSuperAdmin),
		alice:  mk("alice", models.RoleAgent),
		bob:    mk("bob", models.RoleAgent),
		lead:   lead,
	}
}

func (f *fixture) open(t *testing.T, to *models.Worker, reason models.AssignmentReason, at time.Time) int {
	t.Helper()
	ctx := context.Background()
	var id int
	err := f.db.WithTx(ctx, func(tx dialect.Tx) error {
		var err error
		id, err = f.ledger.Open(ctx, tx, OpenRequest{
			LeadID:     f.lead.ID,
			AssignedTo: to.ID,
			AssignedBy: f.admin.ID,
			Notes:      "handoff",
			Reason:     reason,
			At:         at,
		})
		if err != nil {
			return err
		}
		return f.leads.Assign(ctx, tx, f.lead.ID, leads.Assignment{AssignedTo: to.ID, AssignedBy: f.admin.ID, At: at})
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) close(t *testing.T, at time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	var n int64
	err := f.db.WithTx(ctx, func(tx dialect.Tx) error {
		var err error
		n, err = f.ledger.CloseOpen(ctx, tx, f.lead.ID, at)
		return err
	})
	require.NoError(t, err)
	return n
}

func TestLedger_OpenAndHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - empty history", func(t *testing.T) {
		f := setup(t)

		records, err := f.ledger.History(ctx, f.lead.ID)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NotNil(t, records)
	})

	t.Run("Success - most recent first with names", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

		first := f.open(t, f.alice, models.ReasonManual, t0)
		assert.Equal(t, int64(1), f.close(t, t0.Add(time.Hour)))
		second := f.open(t, f.bob, models.ReasonReassignment, t0.Add(time.Hour))

		records, err := f.ledger.History(ctx, f.lead.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, second, records[0].ID)
		assert.Equal(t, f.bob.ID, records[0].AssignedTo)
		assert.Equal(t, "bob", records[0].AssignedToName)
		assert.Equal(t, "admin", records[0].AssignedByName)
		assert.Equal(t, models.ReasonReassignment, records[0].Reason)
		assert.True(t, records[0].IsOpen())

		assert.Equal(t, first, records[1].ID)
		assert.Equal(t, "alice", records[1].AssignedToName)
		assert.Equal(t, "handoff", records[1].Notes)
		require.NotNil(t, records[1].UnassignedAt)
		assert.True(t, records[1].UnassignedAt.Equal(t0.Add(time.Hour)))
		assert.False(t, records[1].IsOpen())
	})
}

func TestLedger_CloseOpen(t *testing.T) {
	t.Run("Success - nothing to close", func(t *testing.T) {
		f := setup(t)
		assert.Equal(t, int64(0), f.close(t, time.Now().UTC()))
	})

	t.Run("Success - closed records are not touched again", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

		f.open(t, f.alice, models.ReasonManual, t0)
		assert.Equal(t, int64(1), f.close(t, t0.Add(time.Minute)))
		assert.Equal(t, int64(0), f.close(t, t0.Add(time.Hour)))

		records, err := f.ledger.History(context.Background(), f.lead.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].UnassignedAt.Equal(t0.Add(time.Minute)))
	})
}

func TestLedger_OpenOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - no open interval", func(t *testing.T) {
		f := setup(t)

		_, ok, err := f.ledger.OpenOwner(ctx, f.db.Driver(), f.lead.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Success - names the current holder", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		f.open(t, f.alice, models.ReasonManual, t0)
		f.close(t, t0.Add(time.Minute))
		f.open(t, f.bob, models.ReasonReassignment, t0.Add(time.Minute))

		owner, ok, err := f.ledger.OpenOwner(ctx, f.db.Driver(), f.lead.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, f.bob.ID, owner)
	})
}

func TestLedger_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - consistent ledger", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		f.open(t, f.alice, models.ReasonManual, t0)

		report, err := f.ledger.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, report.OK())
		assert.Equal(t, 1, report.LeadsChecked)
		assert.Equal(t, 1, report.RecordsChecked)
	})

	t.Run("Error - owner without open record", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		f.open(t, f.alice, models.ReasonManual, t0)
		f.close(t, t0.Add(time.Minute))

		report, err := f.ledger.Verify(ctx)
		require.NoError(t, err)
		require.Len(t, report.Violations, 1)
		assert.Equal(t, KindMissingOpen, report.Violations[0].Kind)
		assert.Equal(t, f.lead.ID, report.Violations[0].LeadID)
	})

	t.Run("Error - open record on unassigned lead", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		f.open(t, f.alice, models.ReasonManual, t0)
		require.NoError(t, f.db.WithTx(ctx, func(tx dialect.Tx) error {
			return f.leads.Clear(ctx, tx, f.lead.ID)
		}))

		report, err := f.ledger.Verify(ctx)
		require.NoError(t, err)
		require.Len(t, report.Violations, 1)
		assert.Equal(t, KindStrayOpen, report.Violations[0].Kind)
	})

	t.Run("Error - owner differs from open record", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		f.open(t, f.alice, models.ReasonManual, t0)
		require.NoError(t, f.db.WithTx(ctx, func(tx dialect.Tx) error {
			return f.leads.Assign(ctx, tx, f.lead.ID, leads.Assignment{AssignedTo: f.bob.ID, AssignedBy: f.admin.ID, At: t0})
		}))

		report, err := f.ledger.Verify(ctx)
		require.NoError(t, err)
		require.Len(t, report.Violations, 1)
		assert.Equal(t, KindOwnerMismatch, report.Violations[0].Kind)
	})

	t.Run("Error - interval closed before it opened", func(t *testing.T) {
		f := setup(t)
		t0 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		f.open(t, f.alice, models.ReasonManual, t0)
		f.close(t, t0.Add(-time.Hour))
		require.NoError(t, f.db.WithTx(ctx, func(tx dialect.Tx) error {
			return f.leads.Clear(ctx, tx, f.lead.ID)
		}))

		report, err := f.ledger.Verify(ctx)
		require.NoError(t, err)
		require.Len(t, report.Violations, 1)
		assert.Equal(t, KindInvertedPeriod, report.Violations[0].Kind)
	})
}
