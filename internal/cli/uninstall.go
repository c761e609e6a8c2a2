package cli

import (
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <id>...",
	Short: "Remove installed extensions",
	Long:  `Remove the records of the given extension ids. Removing an id that is not installed succeeds.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}

	sink := &printSink{out: cmd.OutOrStdout()}
	for _, id := range args {
		sess.svc.UninstallExtension(id, sink)
	}
	sess.settle()
	return sess.finish(cmd.ErrOrStderr())
}
