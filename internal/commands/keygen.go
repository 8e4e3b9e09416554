package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var pubOut, privOut string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 keypair for session-token signing",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}
			if err := os.WriteFile(pubOut, pub, 0o644); err != nil {
				return fmt.Errorf("writing public key: %w", err)
			}
			if err := os.WriteFile(privOut, priv, 0o600); err != nil {
				return fmt.Errorf("writing private key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", pubOut, privOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&pubOut, "pub", "pyhostd.pub", "output path for the public key")
	cmd.Flags().StringVar(&privOut, "priv", "pyhostd.key", "output path for the private key")
	return cmd
}
