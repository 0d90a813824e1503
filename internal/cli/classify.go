package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

type classifyResult struct {
	Profile  sealedlog.Profile `json:"profile" yaml:"profile"`
	Size     int               `json:"size" yaml:"size"`
	Accepted bool              `json:"accepted" yaml:"accepted"`
	Reason   sealedlog.Reason  `json:"reason" yaml:"reason"`
}

func newClassifyCmd(g *globalFlags) *cobra.Command {
	var profileName string
	var remote bool

	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Check whether a payload would be admitted",
		Long:  "Runs the admission classifier on a payload from file or stdin.\nRuns locally unless --remote is set, in which case the server decides.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			payload, err := readInput(cmd, path)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			var profile sealedlog.Profile
			if profileName != "" {
				if profile, err = sealedlog.ParseProfile(profileName); err != nil {
					return err
				}
			}

			result := classifyResult{Size: len(payload)}
			if remote {
				resp, err := g.client().Classify(cmd.Context(), profile, payload)
				if err != nil {
					return err
				}
				result.Profile, result.Accepted, result.Reason = resp.Profile, resp.Accepted, resp.Reason
			} else {
				if profile == "" {
					profile = sealedlog.ProfileFull
				}
				classifier, err := sealedlog.NewClassifier(profile)
				if err != nil {
					return err
				}
				v := classifier.Evaluate(payload)
				result.Profile, result.Accepted, result.Reason = profile, v.Accepted, v.Reason
			}

			return render(cmd.OutOrStdout(), g.output, result, func(w io.Writer) {
				verdict := "rejected"
				if result.Accepted {
					verdict = "accepted"
				}
				printf(w, "%s (%s, profile %s, %d bytes)\n", verdict, result.Reason, result.Profile, result.Size)
			})
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Classifier profile (none|light|full), default full locally")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the server instead of classifying locally")
	return cmd
}
