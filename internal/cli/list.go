package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/agentx-labs/extmgr/internal/extension"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed extensions",
	Long: `Load the current version of every record in the install root and list them
by name. Records that fail to load are reported after the list.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.AddCommand(listCmd)
}

// listEntry represents an installed extension for display.
type listEntry struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Location    string `json:"location" yaml:"location"`
	Path        string `json:"path" yaml:"path"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	switch listOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", listOutput)
	}

	sess, err := newSession()
	if err != nil {
		return err
	}

	sink := &printSink{out: cmd.OutOrStdout(), quiet: true}
	sess.svc.LoadExtensionsFromInstallDirectory(sink)
	sess.settle()

	entries := toEntries(sink.loaded)
	var printErr error
	switch listOutput {
	case "json":
		printErr = printListJSON(cmd, entries)
	case "yaml":
		printErr = printListYAML(cmd, entries)
	default:
		printErr = printListTable(cmd, entries)
	}
	if err := sess.finish(cmd.ErrOrStderr()); err != nil {
		return err
	}
	return printErr
}

func toEntries(exts []*extension.Extension) []listEntry {
	entries := make([]listEntry, 0, len(exts))
	for _, e := range exts {
		entries = append(entries, listEntry{
			ID:          e.ID(),
			Name:        e.Name(),
			Version:     e.VersionString(),
			Location:    e.Location().String(),
			Path:        e.Path(),
			Description: e.Description(),
		})
	}
	return entries
}

func printListTable(cmd *cobra.Command, entries []listEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No extensions installed yet.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tLOCATION\tID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Version, e.Location, e.ID)
	}
	return w.Flush()
}

func printListJSON(cmd *cobra.Command, entries []listEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func printListYAML(cmd *cobra.Command, entries []listEntry) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
