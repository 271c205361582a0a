package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utracks/AegisChat/internal/identity"
)

// fingerprint generates the ephemeral process identity and prints its
// short digest for out-of-band comparison (e.g. read aloud or rendered as
// a QR code by the UI layer).
func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Generate a fresh identity and print its fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := identity.New()
			if err != nil {
				return err
			}
			defer ids.Close()
			fmt.Printf("PeerID:      %s\n", ids.PeerID())
			fmt.Printf("Fingerprint: %s\n", ids.Fingerprint())
			return nil
		},
	}
}
