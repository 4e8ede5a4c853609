package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Run("Success - every known role", func(t *testing.T) {
		for _, r := range Roles {
			got, err := ParseRole(string(r))
			require.NoError(t, err)
			assert.Equal(t, r, got)
		}
	})

	t.Run("Error - unknown role", func(t *testing.T) {
		got, err := ParseRole("owner")
		assert.Error(t, err)
		assert.Equal(t, RoleUnknown, got)
	})
}

func TestParseLeadStatus(t *testing.T) {
	t.Run("Success - proposal_sent", func(t *testing.T) {
		got, err := ParseLeadStatus("proposal_sent")
		require.NoError(t, err)
		assert.Equal(t, StatusProposalSent, got)
	})

	t.Run("Error - unknown status", func(t *testing.T) {
		_, err := ParseLeadStatus("archived")
		assert.Error(t, err)
	})
}

func TestParseAssignmentReason(t *testing.T) {
	t.Run("Success - bulk", func(t *testing.T) {
		got, err := ParseAssignmentReason("bulk")
		require.NoError(t, err)
		assert.Equal(t, ReasonBulk, got)
	})

	t.Run("Error - empty reason", func(t *testing.T) {
		_, err := ParseAssignmentReason("")
		assert.Error(t, err)
	})

	t.Run("Success - values match the enum", func(t *testing.T) {
		assert.Equal(t, []string{"manual", "bulk", "reassignment", "system"}, AssignmentReason("").Values())
		assert.Len(t, Role("").Values(), len(Roles))
	})
}
