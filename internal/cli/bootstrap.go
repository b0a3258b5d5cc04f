// Package cli provides CLI commands for the escalator application.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/example/escalator/internal/agent"
	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/wire"
)

// globalActorID stores the detected actor ID for the current CLI invocation.
// Set once at startup by DetectAndStoreActor().
var globalActorID string

// Persistent flag values shared by every command.
var (
	actorFlag  string
	tenantFlag string
)

// RegisterGlobalFlags adds --actor and --tenant to the root command and
// detects the actor before any subcommand runs.
func RegisterGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor ID recorded on changes (default: $ESCALATOR_ACTOR or the login name)")
	root.PersistentFlags().StringVar(&tenantFlag, "tenant", "", "Tenant ID (default: tenant from .escalator/config.yaml)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return DetectAndStoreActor()
	}
}

// DetectAndStoreActor resolves the actor identity and stores it globally.
// An explicit --actor must parse; detection failures fall back to "unknown".
func DetectAndStoreActor() error {
	if actorFlag != "" {
		identity, err := agent.ParseActorID(actorFlag)
		if err != nil {
			return err
		}
		globalActorID = identity.FullID
		return nil
	}

	identity, err := agent.GetCurrentActorID()
	if err != nil {
		globalActorID = "unknown"
		return nil
	}
	globalActorID = identity.FullID
	return nil
}

// GetActorID returns the stored actor ID from CLI startup.
// Returns empty string if DetectAndStoreActor() was not called.
func GetActorID() string {
	return globalActorID
}

// NewContext creates a context.Background() with the current actor ID embedded.
// CLI commands should use this instead of context.Background() directly.
func NewContext() context.Context {
	ctx := context.Background()
	if globalActorID != "" {
		return ctxutil.WithActorID(ctx, globalActorID)
	}
	return ctx
}

// TenantID returns --tenant, or the configured default tenant.
func TenantID() string {
	if tenantFlag != "" {
		return tenantFlag
	}
	return wire.Config().Tenant
}
