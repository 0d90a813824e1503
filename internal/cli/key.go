package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

func newKeyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect or replace the shared key material",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the current key material and administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := g.client().KeyRecord(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, record, func(w io.Writer) {
				printf(w, "administrator: %s\nupdated:       %s\nkey:           %s\n",
					record.Administrator, record.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"), record.KeyMaterial)
			})
		},
	}

	var keyFile string
	set := &cobra.Command{
		Use:   "set [key-material]",
		Short: "Replace the key material (administrator only)",
		Long:  "Takes the new key material as an argument, or from --file (use - for stdin).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var material string
			switch {
			case len(args) == 1 && keyFile != "":
				return fmt.Errorf("give the key material either as argument or with --file")
			case len(args) == 1:
				material = args[0]
			case keyFile != "":
				data, err := readInput(cmd, keyFile)
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				material = strings.TrimRight(string(data), "\r\n")
			default:
				return fmt.Errorf("no key material given")
			}

			if err := g.client().SetKeyMaterial(cmd.Context(), material); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "key material replaced\n")
			return nil
		},
	}
	set.Flags().StringVarP(&keyFile, "file", "f", "", "Read the key material from this file")

	cmd.AddCommand(get, set)
	return cmd
}

func newAdminCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the key record administrator",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "transfer <identity>",
		Short: "Hand the administrator role to another identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := sealedlog.Identity(args[0])
			if err := g.client().TransferAdministrator(cmd.Context(), target); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "administrator is now %s\n", target)
			return nil
		},
	})
	return cmd
}
