package cli

import (
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <container>...",
	Short: "Install signed extension packages",
	Long: `Verify each signed package, unpack it and publish it to the install root.
Installing the version that is already current reports a reinstall and leaves
the record untouched. A failed install never changes the store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}

	sink := &printSink{out: cmd.OutOrStdout()}
	for _, path := range args {
		sess.svc.InstallExtension(path, sink)
	}
	sess.settle()
	return sess.finish(cmd.ErrOrStderr())
}
