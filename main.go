package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitlife/fitlife-sync/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "fitlife-sync",
	Short: "Fitlife offline sync and push notification service",
	Long:  "Push subscription, notification delivery and offline sync tooling for the Fitlife gym app",
}

func init() {
	rootCmd.AddCommand(cmd.ServerCmd)
	rootCmd.AddCommand(cmd.DeliverDueCmd)
	rootCmd.AddCommand(cmd.MigrateCmd)
	rootCmd.AddCommand(cmd.ClientCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
