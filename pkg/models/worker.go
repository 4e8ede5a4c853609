package models

import (
	"fmt"
	"time"
)

// Role is a worker's role. The set is closed; anything read from storage that
// is not listed here parses to RoleUnknown and is granted nothing.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleAdmin       Role = "admin"
	RoleClientAdmin Role = "client_admin"
	RoleClientUser  Role = "client_user"
	RoleAgent       Role = "agent"
	RoleUnknown     Role = ""
)

// Roles lists every known role in storage order.
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RoleClientAdmin, RoleClientUser, RoleAgent}

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// Values returns the role strings, for enum columns.
func (Role) Values() []string {
	out := make([]string, len(Roles))
	for i, r := range Roles {
		out[i] = string(r)
	}
	return out
}

func (r Role) String() string {
	return string(r)
}

// Worker is a team member capable of owning leads. Rows are owned by the
// identity subsystem; assignment code only reads them.
type Worker struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ClientID  *int      `json:"client_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkerSummary is the worker part of a workload row
type WorkerSummary struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
