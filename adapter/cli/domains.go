package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	domainsapp "github.com/craftfolio/craftfolio/internal/domains/application"
	domainsdomain "github.com/craftfolio/craftfolio/internal/domains/domain"
	routingdomain "github.com/craftfolio/craftfolio/internal/routing/domain"
)

var (
	stuckStatus string
	stuckLimit  int
	retryUser   string
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Inspect and repair domain fulfillment records",
}

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List domains that need operator attention",
	Long: `List fulfillment records stuck in a failure state.

failed_registration means payment was captured but the registrar
purchase failed; the customer needs a refund or a retry.
manual_intervention_required means the domain was registered but never
attached to hosting; money was spent and the attachment must be
finished by hand.

Examples:
  folioctl domains stuck
  folioctl domains stuck --status failed_registration --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("listing stuck domains requires a database connection")
		}
		ctx := cmd.Context()

		statuses := []domainsdomain.Status{
			domainsdomain.StatusManualIntervention,
			domainsdomain.StatusFailedRegistration,
		}
		if stuckStatus != "" {
			statuses = []domainsdomain.Status{domainsdomain.Status(stuckStatus)}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tUSER\tSTATUS\tSTAGE\tREASON\tUPDATED")
		total := 0
		for _, status := range statuses {
			records, err := app.Records.ListByStatus(ctx, status, stuckLimit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.Domain,
					rec.UserID,
					rec.Status,
					rec.Stage,
					rec.FailureReason,
					rec.UpdatedAt.Format("2006-01-02 15:04"),
				)
				total++
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d record(s)\n", total)
		return nil
	},
}

var retryRouteCmd = &cobra.Command{
	Use:   "retry-route <domain>",
	Short: "Re-run routing for a domain whose route step failed",
	Long: `Point an already-registered domain at the owner's primary published
portfolio. The fulfillment saga treats routing as best effort, so a
route conflict or a missing portfolio at purchase time leaves an active
domain with no route. This command retries that one step.

Example:
  folioctl domains retry-route alice.dev --user 6b1e...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("routing repair requires a database connection")
		}
		ctx := cmd.Context()

		userID, err := uuid.Parse(retryUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}

		rec, err := app.Records.FindByUserAndDomain(ctx, userID, args[0])
		if err != nil {
			if errors.Is(err, domainsdomain.ErrNotFound) {
				return fmt.Errorf("no live record for %s owned by %s", args[0], userID)
			}
			return err
		}

		portfolio, err := app.Portfolios.PrimaryPortfolio(ctx, rec.UserID)
		if err != nil {
			if errors.Is(err, domainsapp.ErrNoPortfolio) {
				return fmt.Errorf("user %s has no published portfolio to route to", rec.UserID)
			}
			return err
		}

		entry, err := app.Routes.Activate(ctx, rec.Domain, rec.UserID, portfolio)
		if err != nil {
			if errors.Is(err, routingdomain.ErrRouteConflict) {
				return fmt.Errorf("%s is already routed by another portfolio", rec.Domain)
			}
			return err
		}

		rec.PortfolioID = &portfolio.ID
		if err := app.Records.Update(ctx, rec); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Routed %s -> portfolio %s (%s)\n",
			entry.Domain, portfolio.ID, portfolio.Type)
		return nil
	},
}

func init() {
	stuckCmd.Flags().StringVar(&stuckStatus, "status", "", "only this status")
	stuckCmd.Flags().IntVar(&stuckLimit, "limit", 100, "maximum records per status")
	retryRouteCmd.Flags().StringVar(&retryUser, "user", "", "owning user ID (required)")
	_ = retryRouteCmd.MarkFlagRequired("user")

	domainsCmd.AddCommand(stuckCmd)
	domainsCmd.AddCommand(retryRouteCmd)
	rootCmd.AddCommand(domainsCmd)
}
