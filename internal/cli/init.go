package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/escalator/internal/config"
	"github.com/example/escalator/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the escalator workspace",
		Long: `Write .escalator/config.yaml (if missing) and create the database
with the required schema. --seed adds demo chains for the configured tenant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetBool("seed")

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			cfg, err := config.LoadConfig(cwd)
			switch {
			case errors.Is(err, os.ErrNotExist):
				cfg = config.Default()
				if tenantFlag != "" {
					cfg.Tenant = tenantFlag
				}
				if err := config.SaveConfig(cwd, cfg); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				fmt.Printf("✓ Config written to %s\n", config.Path(cwd))
			case err != nil:
				return err
			default:
				fmt.Printf("Using existing config at %s\n", config.Path(cwd))
			}

			fmt.Printf("Initializing database at %s\n", cfg.Database.Path)
			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()
			fmt.Println("✓ Database initialized successfully")

			if seed {
				if err := db.SeedFixtures(database, cfg.Tenant); err != nil {
					return fmt.Errorf("failed to seed fixtures: %w", err)
				}
				fmt.Printf("✓ Demo chains seeded for tenant %s\n", cfg.Tenant)
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  escalator chain import chains.yaml")
			fmt.Println("  escalator serve")

			return nil
		},
	}
	cmd.Flags().Bool("seed", false, "Seed demo chains")
	return cmd
}
