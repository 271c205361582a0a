package commands

import (
	"github.com/spf13/cobra"

	"github.com/utracks/AegisChat/internal/app"
)

var (
	configPath string
	cfg        app.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:   "aegischat",
		Short: "End-to-end encrypted chat session core",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to aegischat.toml (optional)")

	root.AddCommand(fingerprintCmd(), demoCmd())
	return root.Execute()
}
