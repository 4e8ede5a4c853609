package models

import (
	"fmt"
	"time"
)

// LeadStatus is the pipeline stage of a lead. Status is owned by the lead
// lifecycle elsewhere; the ledger only reads it.
type LeadStatus string

const (
	StatusNew          LeadStatus = "new"
	StatusContacted    LeadStatus = "contacted"
	StatusQualified    LeadStatus = "qualified"
	StatusProposalSent LeadStatus = "proposal_sent"
	StatusConverted    LeadStatus = "converted"
	StatusLost         LeadStatus = "lost"
)

// LeadStatuses lists every known pipeline stage.
var LeadStatuses = []LeadStatus{
	StatusNew, StatusContacted, StatusQualified, StatusProposalSent, StatusConverted, StatusLost,
}

// ParseLeadStatus validates a status filter value.
func ParseLeadStatus(s string) (LeadStatus, error) {
	for _, st := range LeadStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// Lead is a prospective customer with its current assignment.
type Lead struct {
	ID              int        `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Status          LeadStatus `json:"status"`
	AssignedTo      *int       `json:"assigned_to"`
	AssignedToName  string     `json:"assigned_to_name,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at"`
	AssignedBy      *int       `json:"assigned_by"`
	AssignedByName  string     `json:"assigned_by_name,omitempty"`
	AssignmentNotes string     `json:"assignment_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsAssigned reports whether the lead currently has an owner
func (l *Lead) IsAssigned() bool {
	return l.AssignedTo != nil
}
