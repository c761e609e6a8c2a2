package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var pruneAll bool

var pruneCmd = &cobra.Command{
	Use:   "prune [id]...",
	Short: "Remove superseded versions of installed extensions",
	Long:  `Delete every version directory except the current one for the given ids, or for every record with --all.`,
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneAll, "all", false, "Prune every installed extension")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !pruneAll {
		return fmt.Errorf("specify at least one id or --all")
	}

	st, err := openStore()
	if err != nil {
		return err
	}

	ids := args
	if pruneAll {
		if ids, err = st.IDs(); err != nil {
			return err
		}
	}

	var failed int
	for _, id := range ids {
		removed, err := st.Prune(id)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
			failed++
			continue
		}
		if len(removed) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to prune\n", id)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %s\n", id, strings.Join(removed, ", "))
	}
	if failed > 0 {
		return fmt.Errorf("%d prune(s) failed", failed)
	}
	return nil
}
