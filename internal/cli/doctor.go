package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/escalator/internal/adapters/notify"
	"github.com/example/escalator/internal/adapters/sqlite"
	"github.com/example/escalator/internal/config"
	"github.com/example/escalator/internal/db"
	"github.com/example/escalator/internal/ports/secondary"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the escalator environment",
		Long: `Health check for an escalator workspace.

Validates:
- .escalator/config.yaml parses and passes validation
- The database opens and its schema is current
- The tenant has at least one active chain
- The Redis notification gateway answers (when configured)

Examples:
  escalator doctor              # Run full health check
  escalator doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := NewContext()
			results := runChecks(ctx)

			hasErrors := false
			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				fmt.Println()
				fmt.Println("Check              Status")
				fmt.Println("─────────────────────────")
				for _, r := range results {
					fmt.Printf("%-18s %s\n", r.Name, r.Status)
				}
				fmt.Println()

				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Println("Details:")
							hasDetails = true
						}
						fmt.Printf("\n%s:\n%s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Println("\n⚠ Issues found.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

func runChecks(ctx context.Context) []CheckResult {
	cwd, err := os.Getwd()
	if err != nil {
		return []CheckResult{{Name: "Config", Status: "✗", Details: "  Cannot get working directory"}}
	}

	cfg, result := checkConfig(cwd)
	results := []CheckResult{result}
	if cfg == nil {
		return results
	}

	database, result := checkDatabase(cfg.Database.Path)
	results = append(results, result)
	if database != nil {
		defer database.Close()
		tenant := cfg.Tenant
		if tenantFlag != "" {
			tenant = tenantFlag
		}
		results = append(results, checkChains(ctx, sqlite.NewChainRepository(database), tenant))
	}

	return append(results, checkGateway(ctx, cfg.Notifications))
}

// checkConfig loads the workspace config. A missing file is a warning: defaults apply.
func checkConfig(dir string) (*config.Config, CheckResult) {
	cfg, err := config.LoadConfig(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return config.Default(), CheckResult{
			Name:    "Config",
			Status:  "⚠",
			Details: fmt.Sprintf("  No %s; using defaults. Run 'escalator init'.", config.Path(dir)),
		}
	case err != nil:
		return nil, CheckResult{Name: "Config", Status: "✗", Details: "  " + err.Error()}
	}
	return cfg, CheckResult{Name: "Config", Status: "✓"}
}

// checkDatabase opens the database, which applies pending migrations, and confirms the schema version.
func checkDatabase(path string) (*sql.DB, CheckResult) {
	database, err := db.Open(path)
	if err != nil {
		return nil, CheckResult{Name: "Database", Status: "✗", Details: "  " + err.Error()}
	}
	v, err := db.CurrentVersion(database)
	if err != nil || v != db.LatestVersion() {
		database.Close()
		return nil, CheckResult{
			Name:    "Database",
			Status:  "✗",
			Details: fmt.Sprintf("  Schema version %d, want %d (%v)", v, db.LatestVersion(), err),
		}
	}
	return database, CheckResult{Name: "Database", Status: "✓"}
}

func checkChains(ctx context.Context, repo secondary.ChainRepository, tenantID string) CheckResult {
	chains, err := repo.List(ctx, secondary.ChainFilters{TenantID: tenantID, ActiveOnly: true})
	if err != nil {
		return CheckResult{Name: "Chains", Status: "✗", Details: "  " + err.Error()}
	}
	if len(chains) == 0 {
		return CheckResult{
			Name:    "Chains",
			Status:  "⚠",
			Details: fmt.Sprintf("  Tenant %s has no active chains; cases cannot be opened.", tenantID),
		}
	}
	return CheckResult{Name: "Chains", Status: "✓"}
}

func checkGateway(ctx context.Context, n config.NotificationsConfig) CheckResult {
	if n.Gateway != config.GatewayRedis {
		return CheckResult{Name: "Gateway", Status: "✓"}
	}

	client := notify.NewRedisClient(n.RedisAddr)
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return CheckResult{
			Name:    "Gateway",
			Status:  "✗",
			Details: fmt.Sprintf("  Redis at %s: %v", n.RedisAddr, err),
		}
	}
	return CheckResult{Name: "Gateway", Status: "✓"}
}
