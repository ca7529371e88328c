// Command dscore-cli is a scriptable front end onto an in-process
// dscore core: submit a request, sign and execute a query plan, seal
// and access a time capsule, revoke consent, and export the audit
// trail. Every run starts a fresh in-memory Core (dscore has no
// networking surface of its own; a production deployment embeds
// internal/core directly behind its own transport).
//
// Built as one cobra subcommand per operation, flags bound per-command
// behind a shared persistent --config flag.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dscore/internal/audit"
	"dscore/internal/consent"
	"dscore/internal/core"
	"dscore/internal/deletion"
	"dscore/internal/planvm"
	"dscore/internal/queryplan"
	"dscore/pkg/clock"
	"dscore/pkg/config"
	"dscore/pkg/ids"
	"dscore/pkg/logging"
	"dscore/pkg/money"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	nodeID     string
	develLog   bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dscore-cli",
		Short: "On-device consent and query enforcement core",
		Long: "dscore-cli drives a single dscore.Core instance through the " +
			"core's external operations: submit a request, sign and " +
			"execute a query plan, seal and access a time capsule, revoke " +
			"consent, and export the audit trail.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a policy YAML file (defaults to the built-in policy table)")
	root.PersistentFlags().StringVar(&nodeID, "node-id", "dscore-cli-node", "node_id recorded on every audit entry this run appends")
	root.PersistentFlags().BoolVar(&develLog, "dev", false, "use human-readable development logging instead of JSON")

	root.AddCommand(newDemoCmd())
	root.AddCommand(newAuditExportCmd())
	root.AddCommand(newRevokeCmd())
	root.AddCommand(newDeleteCmd())
	return root
}

func buildLogger() (*zap.Logger, error) {
	return logging.New(logging.Config{Development: develLog})
}

func buildCore(logger *zap.Logger) (*core.Core, error) {
	policy := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading policy from %s: %w", configPath, err)
		}
		policy = loaded
		logger.Info("loaded policy table", zap.String("path", configPath))
	}
	c := core.NewInMemory(nodeID, clock.New(), policy, prometheus.NewRegistry())
	if mgr, ok := c.KeyManager.(interface{ GenerateEd25519Key(string) error }); ok {
		if err := mgr.GenerateEd25519Key("demo-signing-key"); err != nil {
			return nil, fmt.Errorf("generating demo signing key: %w", err)
		}
	}
	return c, nil
}

// newDemoCmd runs the happy path end to end against a freshly
// wired Core and prints each stage's result, so an operator (or a CI
// smoke test) can see the full happy path without writing Go.
func newDemoCmd() *cobra.Command {
	var dsID, requesterID string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "run the happy-path consent -> plan -> execute -> capsule flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			c, err := buildCore(logger)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			now := c.Clock.Now()

			contract, err := c.Consent.Create(ctx, consent.CreateParams{
				DSID:               dsID,
				RequesterID:        requesterID,
				RequestID:          "req-demo",
				ScopeHash:          "scope-hash-demo",
				PurposeHash:        "purpose-hash-demo",
				DurationStart:      now,
				DurationEnd:        now.Add(time.Hour),
				Compensation:       "10.0000",
				PermittedFields:    []string{"steps", "hr"},
				RequestScopeFields: []string{"steps", "hr"},
				AllowedTransforms:  []string{"select", "aggregate", "pack_capsule"},
			})
			if err != nil {
				return fmt.Errorf("consent.create: %w", err)
			}
			logger.Info("consent contract granted", zap.String("contract_id", contract.ID.String()))

			draft := queryplan.Draft{
				RequestID:         "req-demo",
				ConsentContractID: contract.ID,
				ScopeHash:         "scope-hash-demo",
				AllowedTransforms: []string{"select", "aggregate", "pack_capsule"},
				PermittedFields:   []string{"steps", "hr"},
				Compensation:      "10.0000",
				TTL:               now.Add(30 * time.Minute),
				ResourceLimits:    config.DefaultResourceLimits(),
				Steps: []queryplan.PlanStep{
					{Index: 0, Operator: "select", InputFields: []string{"steps", "hr"}, OutputFields: []string{"steps", "hr"}},
					{Index: 1, Operator: "aggregate", Params: map[string]string{"op": "count"}, InputFields: []string{"steps", "hr"}, OutputFields: []string{"_aggregate_count"}},
					{Index: 2, Operator: "pack_capsule"},
				},
			}
			plan, err := c.SignPlan(ctx, contract.ID, draft, "demo-signing-key")
			if err != nil {
				return fmt.Errorf("sign_plan: %w", err)
			}
			logger.Info("query plan signed", zap.String("plan_id", plan.ID.String()))

			budget, err := c.PRB.Allocate(ctx, "campaign-demo", money.MustParse("1.0000"), "v1")
			if err != nil {
				return fmt.Errorf("prb.allocate: %w", err)
			}
			budget, err = c.PRB.Lock(ctx, budget.ID)
			if err != nil {
				return fmt.Errorf("prb.lock: %w", err)
			}

			result, err := c.ExecutePlan(ctx, plan, budget.ID, planvm.Mapping{"steps": "100", "hr": "70"})
			if err != nil {
				return fmt.Errorf("execute_plan: %w", err)
			}
			logger.Info("plan executed", zap.String("prb_charged", result.PRBCharged), zap.String("capsule_id", result.CapsuleID))

			capsuleID, err := ids.Parse(result.CapsuleID)
			if err != nil {
				return fmt.Errorf("parsing capsule id: %w", err)
			}
			got, err := c.Capsules.Get(ctx, capsuleID)
			if err != nil {
				return fmt.Errorf("capsules.get: %w", err)
			}

			output, err := c.AccessCapsule(ctx, capsuleID, got.Nonce)
			if err != nil {
				return fmt.Errorf("access_capsule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "capsule %s decrypted output: %s\n", capsuleID, output)

			if _, err := c.AccessCapsule(ctx, capsuleID, got.Nonce); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "replay access correctly denied: %v\n", err)
			} else {
				return fmt.Errorf("expected second capsule access to be denied as a replay")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsID, "ds-id", "ds-demo", "data sovereign id")
	cmd.Flags().StringVar(&requesterID, "requester-id", "requester-demo", "requester id")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke CONTRACT_ID",
		Short: "revoke an active consent contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			c, err := buildCore(logger)
			if err != nil {
				return err
			}
			contractID, err := ids.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing contract id: %w", err)
			}
			if err := c.RevokeConsent(cmd.Context(), contractID); err != nil {
				return fmt.Errorf("revoke_consent: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contract %s revoked\n", contractID)
			return nil
		},
	}
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "delete RESOURCE_TYPE RESOURCE_ID",
		Short: "initiate secure deletion of a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			c, err := buildCore(logger)
			if err != nil {
				return err
			}
			cert, err := c.DeleteResource(cmd.Context(), args[0], args[1], deletion.DeletionMethod(method))
			if err != nil {
				return fmt.Errorf("delete_resource: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cert)
		},
	}
	cmd.Flags().StringVar(&method, "method", string(deletion.MethodCryptoShred), "deletion method: CRYPTO_SHRED, OVERWRITE, or BOTH")
	return cmd
}

func newAuditExportCmd() *cobra.Command {
	var resourceID string
	cmd := &cobra.Command{
		Use:   "audit-export",
		Short: "export the hash-chained audit log as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := buildLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			c, err := buildCore(logger)
			if err != nil {
				return err
			}
			bundle, err := c.AuditExport(cmd.Context(), audit.Filter{ResourceID: resourceID})
			if err != nil {
				return fmt.Errorf("audit_export: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		},
	}
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "restrict the export to entries touching this resource id")
	return cmd
}
