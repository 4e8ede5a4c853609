package testdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/jordanlanch/leadledger/pkg/database"
	"github.com/jordanlanch/leadledger/pkg/leads"
	"github.com/jordanlanch/leadledger/pkg/models"
	"github.com/jordanlanch/leadledger/pkg/workers"
)

// SeedConfig configures fixture generation
type SeedConfig struct {
	Clients         int     // Number of tenant clients, each with one admin
	AgentsPerClient int     // Agents created inside every client
	Leads           int     // Unassigned leads to create
	EmailChance     float64 // 0.0-1.0 (probability of a lead having an email)
}

// DefaultSeedConfig returns a small team suitable for local development
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Clients:         2,
		AgentsPerClient: 3,
		Leads:           50,
		EmailChance:     0.8,
	}
}

// Team is the set of workers and leads created by Seed
type Team struct {
	SuperAdmin *models.Worker
	Admins     []*models.Worker         // Admins[i] scopes ClientIDs[i]
	Agents     map[int][]*models.Worker // By client id
	ClientIDs  []int
	Leads      []*models.Lead
}

// AllAgents returns every agent in client order
func (t *Team) AllAgents() []*models.Worker {
	var out []*models.Worker
	for _, id := range t.ClientIDs {
		out = append(out, t.Agents[id]...)
	}
	return out
}

// LeadIDs returns the ids of every seeded lead
func (t *Team) LeadIDs() []int {
	ids := make([]int, len(t.Leads))
	for i, l := range t.Leads {
		ids[i] = l.ID
	}
	return ids
}

// Generator produces deterministic fake workers and leads
type Generator struct {
	faker *gofakeit.Faker
	seq   int
}

// NewGenerator creates a generator; the same seed yields the same data
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// WorkerRequest generates a worker with a unique email
func (g *Generator) WorkerRequest(role models.Role, clientID *int) workers.CreateWorkerRequest {
	g.seq++
	first := g.faker.FirstName()
	last := g.faker.LastName()
	user := strings.ToLower(fmt.Sprintf("%s.%s.%d", first, last, g.seq))

	return workers.CreateWorkerRequest{
		Name:     first + " " + last,
		Email:    user + "@" + g.faker.DomainName(),
		Role:     role,
		ClientID: clientID,
	}
}

// LeadRequest generates a new lead
func (g *Generator) LeadRequest(emailChance float64) leads.CreateLeadRequest {
	req := leads.CreateLeadRequest{
		Name:   g.faker.Company(),
		Status: models.StatusNew,
	}
	if g.faker.Float64Range(0, 1) < emailChance {
		req.Email = g.faker.Email()
	}
	return req
}

// Seed creates a super admin, one admin and a set of agents per client, and
// a pool of unassigned leads.
func Seed(ctx context.Context, db *database.Client, g *Generator, cfg SeedConfig) (*Team, error) {
	ws := workers.NewStore(db)
	ls := leads.NewStore(db)
	team := &Team{Agents: map[int][]*models.Worker{}}

	var err error
	team.SuperAdmin, err = ws.Create(ctx, g.WorkerRequest(models.RoleSuperAdmin, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to seed super admin: %w", err)
	}

	for i := 1; i <= cfg.Clients; i++ {
		clientID := i
		team.ClientIDs = append(team.ClientIDs, clientID)

		admin, err := ws.Create(ctx, g.WorkerRequest(models.RoleAdmin, &clientID))
		if err != nil {
			return nil, fmt.Errorf("failed to seed admin for client %d: %w", clientID, err)
		}
		team.Admins = append(team.Admins, admin)

		for j := 0; j < cfg.AgentsPerClient; j++ {
			agent, err := ws.Create(ctx, g.WorkerRequest(models.RoleAgent, &clientID))
			if err != nil {
				return nil, fmt.Errorf("failed to seed agent for client %d: %w", clientID, err)
			}
			team.Agents[clientID] = append(team.Agents[clientID], agent)
		}
	}

	for i := 0; i < cfg.Leads; i++ {
		lead, err := ls.Create(ctx, g.LeadRequest(cfg.EmailChance))
		if err != nil {
			return nil, fmt.Errorf("failed to seed lead: %w", err)
		}
		team.Leads = append(team.Leads, lead)
	}

	return team, nil
}
