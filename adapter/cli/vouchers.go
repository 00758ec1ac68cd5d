package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var grantTrigger string

var vouchersCmd = &cobra.Command{
	Use:   "vouchers",
	Short: "Manage discount voucher grants",
}

var grantCmd = &cobra.Command{
	Use:   "grant <user-id>",
	Short: "Grant a user the voucher configured for a trigger",
	Long: `Grant a user the catalog voucher bound to a trigger. Granting the
same voucher twice is a no-op, so re-running after a support escalation
is safe.

Example:
  folioctl vouchers grant 6b1e... --trigger pro_subscription`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return errors.New("granting vouchers requires a database connection")
		}

		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user ID: %w", err)
		}

		if err := app.Vouchers.Grant(cmd.Context(), userID, grantTrigger); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Granted %q voucher to %s\n", grantTrigger, userID)
		return nil
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantTrigger, "trigger", "", "catalog trigger of the voucher (required)")
	_ = grantCmd.MarkFlagRequired("trigger")

	vouchersCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(vouchersCmd)
}
