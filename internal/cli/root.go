// Package cli implements the sealedctl command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/sealed-log/pkg/sealedlog/client"
)

const defaultServer = "http://localhost:8080/api/v1"

type globalFlags struct {
	server string
	token  string
	output string
}

// NewRootCmd builds the sealedctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "sealedctl",
		Short:         "Submit and inspect sealed messages",
		Long:          "Client for a sealed-log server: submit encrypted payloads, read them back,\nmanage the shared key record and check payloads against the admission classifier.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch g.output {
			case outputText, outputJSON, outputYAML:
				return nil
			}
			return fmt.Errorf("unknown output format %q (use text, json or yaml)", g.output)
		},
	}

	root.PersistentFlags().StringVar(&g.server, "server", envOr("SEALEDLOG_URL", defaultServer), "API base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("SEALEDLOG_TOKEN"), "Bearer token identifying the caller")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", outputText, "Output format (text|json|yaml)")

	root.AddCommand(
		newSubmitCmd(g),
		newCountCmd(g),
		newReadCmd(g),
		newTopicsCmd(g),
		newKeyCmd(g),
		newAdminCmd(g),
		newClassifyCmd(g),
		newDeployCmd(g),
		newScanCmd(g),
	)
	return root
}

func (g *globalFlags) client() *client.Client {
	return client.New(g.server, client.WithToken(g.token))
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
