package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"github.com/tendant/sealed-log/pkg/sealedlog/scan"
)

func newScanCmd(g *globalFlags) *cobra.Command {
	var topics []string
	var profileName string

	cmd := &cobra.Command{
		Use:   "scan <identity>...",
		Short: "Read back every message of the given identities",
		Long: "Downloads each stored message so the server verifies its checksum.\n" +
			"With --profile every payload is also re-classified locally, which shows\n" +
			"what a stricter server profile would have rejected.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := scan.Options{Topics: topics}
			for _, a := range args {
				opts.Owners = append(opts.Owners, sealedlog.Identity(a))
			}

			if profileName != "" {
				profile, err := sealedlog.ParseProfile(profileName)
				if err != nil {
					return err
				}
				classifier, err := sealedlog.NewClassifier(profile)
				if err != nil {
					return err
				}
				opts.Processor = scan.ReclassifyProcessor{Classifier: classifier}
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			result, err := scan.New(g.client(), logger).Scan(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), g.output, result, func(w io.Writer) {
				printf(w, "scanned %d messages: %d ok, %d failed (%d corrupted)\n",
					result.TotalFound, result.TotalProcessed, result.TotalFailed, result.Corrupted)
				for _, f := range result.Failures {
					printf(w, "  %s: %s\n", f.Ref, f.Err)
				}
			}); err != nil {
				return err
			}

			if result.TotalFailed > 0 {
				return fmt.Errorf("%d messages failed", result.TotalFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&topics, "topic", "t", nil, "Restrict to these topics (repeatable)")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Re-classify payloads with this profile")
	return cmd
}
