package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jordanlanch/leadledger/config"
	"github.com/jordanlanch/leadledger/pkg/auth"
	"github.com/jordanlanch/leadledger/pkg/leadassignment"
	"github.com/jordanlanch/leadledger/pkg/testdata"
	"github.com/jordanlanch/leadledger/pkg/workers"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

func migrateCmd(cfg *config.Config, flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg, flags, false)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Schema is up to date (%s)\n", okMark, db.Dialect())
			return nil
		},
	}
}

func seedCmd(cfg *config.Config, flags *dbFlags) *cobra.Command {
	seedCfg := testdata.DefaultSeedConfig()
	var (
		seed   int64
		spread bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a fake team and lead pool",
		Long: `Create a super admin, one admin and a set of agents per client, and a
pool of leads. With --assign the leads are spread round-robin over the agents
through bulk assignment, so the ledger gets real history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg, flags, true)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			team, err := testdata.Seed(ctx, db, testdata.NewGenerator(seed), seedCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Seeded %d clients, %d agents, %d leads\n",
				okMark, len(team.ClientIDs), len(team.AllAgents()), len(team.Leads))
			fmt.Fprintf(out, "  super admin: id=%d %s\n", team.SuperAdmin.ID, team.SuperAdmin.Email)
			for i, admin := range team.Admins {
				fmt.Fprintf(out, "  admin (client %d): id=%d %s\n", team.ClientIDs[i], admin.ID, admin.Email)
			}

			agents := team.AllAgents()
			if !spread || len(agents) == 0 {
				return nil
			}

			batches := make(map[int][]int, len(agents))
			for i, id := range team.LeadIDs() {
				agent := agents[i%len(agents)]
				batches[agent.ID] = append(batches[agent.ID], id)
			}

			svc := leadassignment.NewService(db, leadassignment.WithBulkAssignMax(len(team.Leads)))
			for _, agent := range agents {
				ids := batches[agent.ID]
				if len(ids) == 0 {
					continue
				}
				res, err := svc.BulkAssign(ctx, leadassignment.BulkAssignRequest{
					LeadIDs:    ids,
					AssignedTo: agent.ID,
					Notes:      "seeded",
				}, team.SuperAdmin.ID)
				if err != nil {
					return fmt.Errorf("failed assigning leads to worker %d: %w", agent.ID, err)
				}
				fmt.Fprintf(out, "  assigned %d/%d leads to %s\n", res.AssignedCount, res.TotalRequested, agent.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&seedCfg.Clients, "clients", seedCfg.Clients, "number of tenant clients")
	cmd.Flags().IntVar(&seedCfg.AgentsPerClient, "agents", seedCfg.AgentsPerClient, "agents per client")
	cmd.Flags().IntVar(&seedCfg.Leads, "leads", seedCfg.Leads, "number of leads")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().BoolVar(&spread, "assign", true, "spread the leads over the agents")
	return cmd
}

func verifyCmd(cfg *config.Config, flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every lead owner matches its open ledger interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg, flags, false)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := leadassignment.NewService(db).Verify(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %d leads and %d ledger records\n", report.LeadsChecked, report.RecordsChecked)
			if report.OK() {
				fmt.Fprintf(out, "%s Ledger is consistent\n", okMark)
				return nil
			}
			for _, v := range report.Violations {
				fmt.Fprintf(out, "%s lead %d: %s (%s)\n", failMark, v.LeadID,
					color.New(color.FgYellow).Sprint(v.Kind), v.Detail)
			}
			return fmt.Errorf("ledger has %d violations", len(report.Violations))
		},
	}
}

func tokenCmd(cfg *config.Config, flags *dbFlags) *cobra.Command {
	var (
		workerID int
		hours    int
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg, flags, false)
			if err != nil {
				return err
			}
			defer db.Close()

			w, err := workers.NewStore(db).Get(cmd.Context(), workerID)
			if err != nil {
				return fmt.Errorf("failed loading worker %d: %w", workerID, err)
			}
			token, err := auth.GenerateJWT(w.ID, string(w.Role), w.ClientID, cfg.JWTSecret, hours)
			if err != nil {
				return fmt.Errorf("failed signing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().IntVar(&workerID, "worker-id", 0, "worker the token is issued for")
	cmd.Flags().IntVar(&hours, "hours", cfg.JWTExpirationHours, "token lifetime in hours")
	_ = cmd.MarkFlagRequired("worker-id")
	return cmd
}
