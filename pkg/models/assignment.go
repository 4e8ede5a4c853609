package models

import (
	"fmt"
	"time"
)

// AssignmentReason records why an ownership interval was opened.
type AssignmentReason string

const (
	ReasonManual       AssignmentReason = "manual"
	ReasonBulk         AssignmentReason = "bulk"
	ReasonReassignment AssignmentReason = "reassignment"
	ReasonSystem       AssignmentReason = "system"
)

// AssignmentReasons lists every accepted reason.
var AssignmentReasons = []AssignmentReason{ReasonManual, ReasonBulk, ReasonReassignment, ReasonSystem}

// ParseAssignmentReason validates a caller-supplied reason. The empty string
// is not accepted here; callers pick a default first.
func ParseAssignmentReason(s string) (AssignmentReason, error) {
	for _, r := range AssignmentReasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown assignment reason %q", s)
}

// Values returns the reason strings, for enum columns.
func (AssignmentReason) Values() []string {
	out := make([]string, len(AssignmentReasons))
	for i, r := range AssignmentReasons {
		out[i] = string(r)
	}
	return out
}

// AssignmentRecord is one ownership interval of a lead by a worker. It is open
// until UnassignedAt is set, which happens at most once.
type AssignmentRecord struct {
	ID             int              `json:"id"`
	LeadID         int              `json:"lead_id"`
	AssignedTo     int              `json:"assigned_to"`
	AssignedToName string           `json:"assigned_to_name,omitempty"`
	AssignedBy     *int             `json:"assigned_by"`
	AssignedByName string           `json:"assigned_by_name,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Reason         AssignmentReason `json:"reason"`
	AssignedAt     time.Time        `json:"assigned_at"`
	UnassignedAt   *time.Time       `json:"unassigned_at"`
}

// IsOpen reports whether the interval is still the current ownership
func (r *AssignmentRecord) IsOpen() bool {
	return r.UnassignedAt == nil
}

// BulkAssignResult summarises a bulk assignment
type BulkAssignResult struct {
	AssignedCount  int `json:"assigned_count"`
	TotalRequested int `json:"total_requested"`
}

// WorkloadRow is the per-worker ownership rollup
type WorkloadRow struct {
	Worker       WorkerSummary `json:"worker"`
	TotalLeads   int           `json:"total_leads"`
	New          int           `json:"new"`
	Contacted    int           `json:"contacted"`
	Qualified    int           `json:"qualified"`
	ProposalSent int           `json:"proposal_sent"`
	Converted    int           `json:"converted"`
}
