package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buemura/jarhunter/internal/fixer"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup.zip>",
	Short: "Put files from a backup archive back in place",
	Long: `Restore writes every file stored in a backup archive created by
"scan --fix" back to its original path. Files are truncated and rewritten in
place so hard links and ownership are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	res, err := fixer.Restore(args[0], out)
	if err != nil {
		return &ExitError{Code: 2, Err: fmt.Errorf("cannot restore from %s: %w", args[0], err)}
	}

	fmt.Fprintf(out, "Restored %d files\n", len(res.Restored))
	if len(res.Failed) > 0 {
		return &ExitError{Code: 2, Err: fmt.Errorf("%d files could not be restored", len(res.Failed))}
	}
	return nil
}
