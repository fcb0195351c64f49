// Copyright 2026 The Clinicflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/session"
	"github.com/clinicflow/clinicflow/internal/store/postgres"
	"github.com/clinicflow/clinicflow/internal/subscription"
	"github.com/clinicflow/clinicflow/internal/tenant"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Applying initial schema...")
		if err := db.Migrate(cmd.Context(), postgres.InitialSchema); err != nil {
			return err
		}
		fmt.Println("Migration successful.")
		return nil
	},
}

// planFile is the layout of a plan catalog seed file. Prices are in cents.
type planFile struct {
	Plans []subscription.Plan `yaml:"plans"`
}

func readPlanFile(path string) ([]subscription.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	for i, p := range f.Plans {
		if p.Name == "" {
			return nil, fmt.Errorf("plan %d: name is required", i)
		}
		if p.Name != subscription.PlanTrial && (p.MonthlyPrice <= 0 || p.AnnualPrice <= 0) {
			return nil, fmt.Errorf("plan %q: monthly_price and annual_price must be positive", p.Name)
		}
	}
	return f.Plans, nil
}

var seedPlansCmd = &cobra.Command{
	Use:   "seed-plans <file>",
	Short: "Create or update the plan catalog from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plans, err := readPlanFile(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			for i := range plans {
				p := plans[i]
				if err := a.planRepo.Upsert(ctx, &p); err != nil {
					return fmt.Errorf("plan %q: %w", p.Name, err)
				}
				fmt.Printf("✓ %s (%s)\n", p.Name, p.ID)
			}
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue subscriptions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := subscription.NewSweeper(a.subRepo, a.subscriptions).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("expired=%d assistants_disabled=%d failures=%d\n",
				report.Expired, report.AssistantsDisabled, report.Failures)
			return nil
		})
	},
}

var registerClinicFlags struct {
	name     string
	email    string
	phone    string
	document string
	owner    string
}

var registerClinicCmd = &cobra.Command{
	Use:   "register-clinic",
	Short: "Register a clinic, bind its owner and start the free trial",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := registerClinicFlags
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			t, err := a.tenants.CreateTenant(ctx, &tenant.Tenant{
				Name:             f.name,
				Email:            f.email,
				Phone:            f.phone,
				Document:         f.document,
				AssistantEnabled: true,
			}, f.owner)
			if err != nil {
				return err
			}
			sub, err := a.subscriptions.StartTrial(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("clinic %s created but trial failed: %w", t.ID, err)
			}
			fmt.Printf("clinic=%s subscription=%s trial_ends=%s\n", t.ID, sub.ID, sub.PeriodEnd.Format(time.RFC3339))
			return nil
		})
	},
}

var issueTokenFlags struct {
	user  string
	email string
	ttl   time.Duration
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Sign a session token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		token, err := session.NewVerifier(cfg.Session.JWTSecret, cfg.Session.Audience).
			Sign(issueTokenFlags.user, issueTokenFlags.email, issueTokenFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var resetDBConfirm bool

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Delete all billing data (development only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetDBConfirm {
			return fmt.Errorf("refusing to delete data without --yes")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("Cleaning database...")
		if err := db.Truncate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Database cleaned.")
		return nil
	},
}

func init() {
	flags := registerClinicCmd.Flags()
	flags.StringVar(&registerClinicFlags.name, "name", "", "clinic name")
	flags.StringVar(&registerClinicFlags.email, "email", "", "billing email")
	flags.StringVar(&registerClinicFlags.phone, "phone", "", "contact phone")
	flags.StringVar(&registerClinicFlags.document, "document", "", "CPF or CNPJ")
	flags.StringVar(&registerClinicFlags.owner, "owner", "", "identity provider user id of the owner")
	_ = registerClinicCmd.MarkFlagRequired("name")
	_ = registerClinicCmd.MarkFlagRequired("email")

	issueTokenCmd.Flags().StringVar(&issueTokenFlags.user, "user", "", "user id (token subject)")
	issueTokenCmd.Flags().StringVar(&issueTokenFlags.email, "email", "", "user email")
	issueTokenCmd.Flags().DurationVar(&issueTokenFlags.ttl, "ttl", time.Hour, "token lifetime")
	_ = issueTokenCmd.MarkFlagRequired("user")

	resetDBCmd.Flags().BoolVar(&resetDBConfirm, "yes", false, "confirm deleting all data")
}
