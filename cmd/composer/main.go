package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/moments-social/moments-backend/internal/composer"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
)

var (
	apiURL    = "http://localhost:3000/api"
	authToken string
	stateDir  string
)

var rootCmd = &cobra.Command{
	Use:   "composer",
	Short: "Moments composer - write, autosave and publish posts from the terminal",
	Long: `Moments composer drives the draft engine against a running Moments API:
drafts are kept locally, autosaved to the cloud every 30 seconds, and
reconciled on startup (the newer of the local and server drafts wins).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("MOMENTS_TOKEN")
		}
		if stateDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			stateDir = filepath.Join(home, ".moments", "drafts")
		}
	},
}

func init() {
	pkglogger.Init()
	pkglogger.InitStructured("cli")

	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Auth token (defaults to MOMENTS_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API base URL")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Local draft directory (defaults to ~/.moments/drafts)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(composeCmd)
}

func newClient() *composer.APIClient {
	client := composer.NewAPIClient(apiURL)
	if authToken != "" {
		client.SetToken(authToken)
	}
	return client
}

func requireToken() error {
	if authToken == "" {
		return fmt.Errorf("not logged in: run `composer login` and export MOMENTS_TOKEN")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
