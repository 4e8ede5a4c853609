package database

import (
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/jordanlanch/leadledger/pkg/models"
)

// Table names
const (
	WorkersTable = "workers"
	LeadsTable   = "leads"
	HistoryTable = "lead_assignment_history"
)

var (
	// WorkersColumns holds the columns for the "workers" table.
	WorkersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "name", Type: field.TypeString},
		{Name: "email", Type: field.TypeString, Unique: true},
		{Name: "role", Type: field.TypeString},
		{Name: "client_id", Type: field.TypeInt, Nullable: true},
		{Name: "active", Type: field.TypeBool, Default: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// WorkersTableSchema holds the schema information for the "workers" table.
	WorkersTableSchema = &schema.Table{
		Name:       WorkersTable,
		Columns:    WorkersColumns,
		PrimaryKey: []*schema.Column{WorkersColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "worker_client_id",
				Unique:  false,
				Columns: []*schema.Column{WorkersColumns[4]},
			},
		},
	}

	// LeadsColumns holds the columns for the "leads" table.
	LeadsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "name", Type: field.TypeString},
		{Name: "email", Type: field.TypeString, Nullable: true},
		{Name: "status", Type: field.TypeString, Default: string(models.StatusNew)},
		{Name: "assigned_at", Type: field.TypeTime, Nullable: true},
		{Name: "assignment_notes", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "assigned_to", Type: field.TypeInt, Nullable: true},
		{Name: "assigned_by", Type: field.TypeInt, Nullable: true},
	}
	// LeadsTableSchema holds the schema information for the "leads" table.
	LeadsTableSchema = &schema.Table{
		Name:       LeadsTable,
		Columns:    LeadsColumns,
		PrimaryKey: []*schema.Column{LeadsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "leads_workers_assigned_leads",
				Columns:    []*schema.Column{LeadsColumns[7]},
				RefColumns: []*schema.Column{WorkersColumns[0]},
				OnDelete:   schema.SetNull,
			},
			{
				Symbol:     "leads_workers_delegated_leads",
				Columns:    []*schema.Column{LeadsColumns[8]},
				RefColumns: []*schema.Column{WorkersColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "lead_assigned_to_status",
				Unique:  false,
				Columns: []*schema.Column{LeadsColumns[7], LeadsColumns[3]},
			},
			{
				Name:    "lead_created_at",
				Unique:  false,
				Columns: []*schema.Column{LeadsColumns[6]},
			},
		},
	}

	// HistoryColumns holds the columns for the "lead_assignment_history" table.
	HistoryColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "notes", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "reason", Type: field.TypeEnum, Enums: models.ReasonManual.Values(), Default: string(models.ReasonManual)},
		{Name: "assigned_at", Type: field.TypeTime},
		{Name: "unassigned_at", Type: field.TypeTime, Nullable: true},
		{Name: "lead_id", Type: field.TypeInt},
		{Name: "assigned_to", Type: field.TypeInt},
		{Name: "assigned_by", Type: field.TypeInt, Nullable: true},
	}
	// HistoryTableSchema holds the schema information for the "lead_assignment_history" table.
	HistoryTableSchema = &schema.Table{
		Name:       HistoryTable,
		Columns:    HistoryColumns,
		PrimaryKey: []*schema.Column{HistoryColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "lead_assignment_history_leads_history",
				Columns:    []*schema.Column{HistoryColumns[5]},
				RefColumns: []*schema.Column{LeadsColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "lead_assignment_history_workers_assignments",
				Columns:    []*schema.Column{HistoryColumns[6]},
				RefColumns: []*schema.Column{WorkersColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "lead_assignment_history_workers_delegations",
				Columns:    []*schema.Column{HistoryColumns[7]},
				RefColumns: []*schema.Column{WorkersColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				// At most one open interval per lead.
				Name:       "leadassignmenthistory_lead_id_open",
				Unique:     true,
				Columns:    []*schema.Column{HistoryColumns[5]},
				Annotation: &entsql.IndexAnnotation{Where: "unassigned_at IS NULL"},
			},
			{
				Name:    "leadassignmenthistory_lead_id_assigned_at",
				Unique:  false,
				Columns: []*schema.Column{HistoryColumns[5], HistoryColumns[3]},
			},
			{
				Name:    "leadassignmenthistory_assigned_to_unassigned_at",
				Unique:  false,
				Columns: []*schema.Column{HistoryColumns[6], HistoryColumns[4]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		WorkersTableSchema,
		LeadsTableSchema,
		HistoryTableSchema,
	}
)

func init() {
	LeadsTableSchema.ForeignKeys[0].RefTable = WorkersTableSchema
	LeadsTableSchema.ForeignKeys[1].RefTable = WorkersTableSchema
	HistoryTableSchema.ForeignKeys[0].RefTable = LeadsTableSchema
	HistoryTableSchema.ForeignKeys[1].RefTable = WorkersTableSchema
	HistoryTableSchema.ForeignKeys[2].RefTable = WorkersTableSchema
}
