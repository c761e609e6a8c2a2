package cli

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/extmgr/internal/crx"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/platform"
	"github.com/agentx-labs/extmgr/internal/userdata"
)

var (
	keygenOut   string
	keygenBits  int
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a package signing key",
	Long: `Generate an RSA private key for signing packages. The extension id is derived
from the key, so keep it: every version of an extension must be signed with it.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "Where to write the PEM encoded key")
	keygenCmd.Flags().IntVar(&keygenBits, "bits", crx.DefaultKeyBits, "RSA key size")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing key file")
	_ = keygenCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if !keygenForce {
		if _, err := os.Stat(keygenOut); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", keygenOut)
		}
	}

	key, err := crx.GenerateKey(keygenBits)
	if err != nil {
		return err
	}
	if err := platform.WriteFileAtomic(keygenOut, crx.EncodePrivateKeyPEM(key), userdata.FilePermSecure); err != nil {
		return err
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (id %s)\n", keygenOut, extension.IDFromPublicKey(der))
	return nil
}
