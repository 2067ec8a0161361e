package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitlife/fitlife-sync/internal/di"
)

var deliverDueEnvFile string

// DeliverDueCmd runs one due-notification pass. It is the entry point for
// an external scheduler such as a Kubernetes CronJob.
var DeliverDueCmd = &cobra.Command{
	Use:   "deliver-due",
	Short: "Deliver scheduled notifications whose time has come",
	Long: `Deliver every scheduled notification whose scheduledAt has passed and exit.

Run it from an external scheduler; the cadence is up to the caller.`,
	RunE: runDeliverDue,
}

func init() {
	DeliverDueCmd.Flags().StringVarP(&deliverDueEnvFile, "env-file", "e", ".env", "Optional .env file to load")
}

type deliverDueOutput struct {
	Delivered int `json:"delivered"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func runDeliverDue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(deliverDueEnvFile)
	if err != nil {
		return err
	}
	logg := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := di.NewContainer(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() { _ = container.Close() }()

	resp, err := container.SendNotificationUC.DeliverDue(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deliver due notifications: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), deliverDueOutput{
		Delivered: resp.Delivered,
		Sent:      resp.Sent,
		Failed:    resp.Failed,
	})
}
