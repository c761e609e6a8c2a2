package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/extmgr/internal/crx"
	"github.com/agentx-labs/extmgr/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <dir|package>",
	Short: "Check an unpacked extension or a signed package",
	Long: `Run the checks an install or load would run without touching the install root.
A package is verified against its signature and unpacked to a temporary
directory first. When the manifest fails schema validation every issue is listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("reading %s: %w", target, err)
	}

	dir := target
	id := ""
	if !info.IsDir() {
		c, err := crx.Open(target)
		if err != nil {
			return err
		}
		tmp, err := os.MkdirTemp("", "extmgr-validate-*")
		if err != nil {
			return fmt.Errorf("creating temp directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		if err := c.Extract(tmp); err != nil {
			return err
		}
		dir, id = tmp, c.ID()
	}

	m, err := manifest.Load(dir)
	if err != nil {
		printSchemaIssues(cmd.ErrOrStderr(), dir)
		return err
	}

	if id == "" {
		id = m.ID
	}
	if id == "" {
		id = "(assigned on load)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s id %s\n", m.Name, m.Version.Original(), id)
	return nil
}

// printSchemaIssues lists every schema issue of the manifest in dir, if it
// can be read at all.
func printSchemaIssues(w io.Writer, dir string) {
	data, err := os.ReadFile(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return
	}
	result, err := manifest.Validate(data)
	if err != nil || result.Valid {
		return
	}
	for _, issue := range result.Issues {
		fmt.Fprintf(w, "  %s: %s\n", issue.Key(), issue.Message)
	}
}
