package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/sealed-log/pkg/sealedlog"
	"gopkg.in/yaml.v3"
)

// Deployment is the artifact written by `sealedctl deploy`. Clients load it
// to find the server and the key to encrypt for.
type Deployment struct {
	Server        string                 `yaml:"server" json:"server"`
	Instance      sealedlog.InstanceInfo `yaml:"instance" json:"instance"`
	Administrator string                 `yaml:"administrator" json:"administrator"`
	KeyMaterial   string                 `yaml:"key_material" json:"key_material"`
	RecordedAt    time.Time              `yaml:"recorded_at" json:"recorded_at"`
}

// LoadDeployment reads an artifact written by deploy.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &d, nil
}

func newDeployCmd(g *globalFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Record the server's instance and key record in a YAML artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := g.client()
			info, err := c.Instance(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch instance: %w", err)
			}
			record, err := c.KeyRecord(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch key record: %w", err)
			}

			d := Deployment{
				Server:        g.server,
				Instance:      *info,
				Administrator: record.Administrator,
				KeyMaterial:   record.KeyMaterial,
				RecordedAt:    time.Now().UTC(),
			}
			data, err := yaml.Marshal(&d)
			if err != nil {
				return err
			}

			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(outPath, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			printf(cmd.OutOrStdout(), "instance %s (profile %s) recorded in %s\n", info.InstanceID, info.Profile, outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "deployment.yaml", "Artifact path")
	return cmd
}
