package cli

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/extmgr/internal/crx"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/manifest"
	"github.com/agentx-labs/extmgr/internal/platform"
)

var (
	packKey      string
	packOut      string
	packExcludes []string
)

var packCmd = &cobra.Command{
	Use:   "pack <dir>",
	Short: "Build a signed package from an unpacked extension",
	Long: `Validate the unpacked extension in <dir>, zip it and sign it with the RSA key
in --key. The package is written to --out, or to <dir>.crx next to the directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVar(&packKey, "key", "", "PEM encoded RSA private key (see 'keygen')")
	packCmd.Flags().StringVar(&packOut, "out", "", "Output package path")
	packCmd.Flags().StringSliceVar(&packExcludes, "exclude", nil, "Additional glob of files to leave out (repeatable)")
	_ = packCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	dir := filepath.Clean(args[0])

	if _, err := manifest.Load(dir); err != nil {
		return fmt.Errorf("validating %s: %w", dir, err)
	}

	key, err := crx.LoadPrivateKey(packKey)
	if err != nil {
		return err
	}

	out := packOut
	if out == "" {
		out = dir + ".crx"
	}

	excludes := append(append([]string{}, crx.DefaultExcludes...), packExcludes...)
	payload, err := crx.BuildPayload(dir, excludes...)
	if err != nil {
		return fmt.Errorf("packing %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := crx.Write(&buf, payload, key); err != nil {
		return fmt.Errorf("signing package: %w", err)
	}
	if err := platform.WriteFileAtomic(out, buf.Bytes(), 0644); err != nil {
		return err
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Packed %s -> %s (id %s)\n", dir, out, extension.IDFromPublicKey(der))
	return nil
}
