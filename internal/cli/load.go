package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/watcher"
)

var loadWatch bool

var loadCmd = &cobra.Command{
	Use:   "load <dir>",
	Short: "Load an unpacked extension in place",
	Long: `Validate and load the unpacked extension in <dir> without installing it.
With --watch the extension is reloaded whenever a file below <dir> changes,
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().BoolVar(&loadWatch, "watch", false, "Reload the extension when its files change")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	dir := args[0]

	sess, err := newSession()
	if err != nil {
		return err
	}

	sink := &printSink{out: cmd.OutOrStdout()}
	sess.svc.LoadExtension(dir, sink)
	sess.settle()

	if !loadWatch {
		return sess.finish(cmd.ErrOrStderr())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := watchAndReload(ctx, sess, dir, sink); err != nil {
		return err
	}
	return sess.finish(cmd.ErrOrStderr())
}

// watchAndReload reloads dir on every debounced change until ctx is done.
// Failures of individual reloads are printed and do not stop the watch.
func watchAndReload(ctx context.Context, sess *session, dir string, sink *printSink) error {
	cfg := watcher.DefaultConfig(dir)
	cfg.Logger = env.logger.Named("watcher")
	w, err := watcher.New(cfg)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	defer w.Stop()

	flushErrors(sess, sink.out)
	fmt.Fprintf(sink.out, "Watching %s for changes (Ctrl+C to stop)\n", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			env.logger.Debug("reloading extension", zap.String("path", dir))
			sess.svc.LoadExtension(dir, sink)
			sess.settle()
			flushErrors(sess, sink.out)
		}
	}
}

// flushErrors prints and clears the errors reported so far.
func flushErrors(sess *session, w io.Writer) {
	reporter := sess.svc.Reporter()
	for _, msg := range reporter.Errors() {
		fmt.Fprintln(w, msg)
	}
	reporter.Clear()
}
