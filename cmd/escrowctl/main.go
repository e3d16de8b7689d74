package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/app/bootstrap"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "escrowctl",
		Short:        "Operator tooling for the escrow core",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/default.yaml", "path to the service config file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, err := bootstrap.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return bootstrap.Build(ctx, cfg, bootstrap.BuildOptions{})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if err := rt.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [name|all]",
		Short: "Run one maintenance sweep, or all of them, once",
		Long: `Run a maintenance sweep outside the worker schedule.

Sweeps:
  reconcile              compare local orders with the payment processor
  expire_checkouts       drop checkouts that were never paid
  expire_authorizations  cancel authorizations nobody accepted in time
  auto_confirm           confirm deliveries the merchant left unanswered`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: append(application.SweepNames(), "all"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			names := []string{args[0]}
			if args[0] == "all" {
				names = application.SweepNames()
			}
			var failed error
			for _, name := range names {
				report, err := rt.Service().RunSweep(ctx, name)
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("unknown sweep %q", name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s scanned=%d applied=%d skipped=%d failed=%d took=%s\n",
					name, report.Scanned, report.Applied, report.Skipped, report.Failed,
					report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
				if err != nil {
					failed = errors.Join(failed, fmt.Errorf("sweep %s: %w", name, err))
				}
			}
			return failed
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the configured private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := domain.ParseRole(role)
			if parsed == "" || parsed == domain.RoleSystem {
				return fmt.Errorf("unsupported role %q", role)
			}
			if subject == "" {
				return errors.New("--sub is required")
			}

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			signer, err := rt.TokenSigner()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			token, err := signer.Sign(ports.AuthClaims{
				SubjectID: subject,
				Role:      parsed,
				IssuedAt:  now,
				ExpiresAt: now.Add(ttl),
			})
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "subject (user id) to embed")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleMerchant), "role: merchant, influencer or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
