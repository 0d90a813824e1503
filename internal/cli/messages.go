package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// readInput reads a payload from path, or stdin when path is "" or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func newSubmitCmd(g *globalFlags) *cobra.Command {
	var topic, precheck string

	cmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Append an encrypted payload to your log",
		Long:  "Reads the payload from file or stdin and submits it under --topic.\nWith --precheck the payload is classified locally first and not sent if it would be rejected.",
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

			if precheck != "" {
				profile, err := sealedlog.ParseProfile(precheck)
				if err != nil {
					return err
				}
				classifier, err := sealedlog.NewClassifier(profile)
				if err != nil {
					return err
				}
				if v := classifier.Evaluate(payload); !v.Accepted {
					return &sealedlog.RejectedError{Reason: v.Reason}
				}
			}

			msg, err := g.client().Submit(cmd.Context(), topic, payload)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, msg, func(w io.Writer) {
				printf(w, "stored %s/%q index %d (%d bytes)\n", msg.Owner, msg.Topic, msg.Index, msg.Size)
			})
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to append to")
	cmd.Flags().StringVar(&precheck, "precheck", "", "Classify locally with this profile before sending")
	return cmd
}

func newCountCmd(g *globalFlags) *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "count <identity>",
		Short: "Show how many messages an identity stored under a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := sealedlog.Identity(args[0])
			n, err := g.client().Count(cmd.Context(), owner, topic)
			if err != nil {
				return err
			}
			out := map[string]any{"identity": owner, "topic": topic, "count": n}
			return render(cmd.OutOrStdout(), g.output, out, func(w io.Writer) {
				printf(w, "%d\n", n)
			})
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to count")
	return cmd
}

func newReadCmd(g *globalFlags) *cobra.Command {
	var topic, outPath string

	cmd := &cobra.Command{
		Use:   "read <identity> <index>",
		Short: "Fetch a stored payload",
		Long:  "Writes the raw payload to stdout or to --file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}

			payload, err := g.client().Read(cmd.Context(), sealedlog.Identity(args[0]), topic, index)
			if err != nil {
				return err
			}

			if outPath != "" {
				return os.WriteFile(outPath, payload, 0600)
			}
			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to read from")
	cmd.Flags().StringVarP(&outPath, "file", "f", "", "Write the payload to this file")
	return cmd
}

func newTopicsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "topics <identity>",
		Short: "List the topics an identity has written to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topics, err := g.client().ListTopics(cmd.Context(), sealedlog.Identity(args[0]))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, topics, func(w io.Writer) {
				for _, t := range topics {
					printf(w, "%q\n", t)
				}
			})
		},
	}
}
