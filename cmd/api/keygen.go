// AngelaMos | 2026
// keygen.go

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/saas-backend/internal/auth"
)

var (
	privateKeyOut string
	publicKeyOut  string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ES256 key pair for signing access tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range []string{privateKeyOut, publicKeyOut} {
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("create key directory: %w", err)
			}
		}
		if err := auth.GenerateKeyPair(privateKeyOut, publicKeyOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privateKeyOut, publicKeyOut)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&privateKeyOut, "private", "keys/private.pem", "private key output path")
	keygenCmd.Flags().StringVar(&publicKeyOut, "public", "keys/public.pem", "public key output path")
	rootCmd.AddCommand(keygenCmd)
}
