package cli

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [uuid]",
	Short: "Follow the progress of a graph pipeline",
	Long: `Attach to a graph pipeline and follow it until it finishes.

On a terminal this opens an interactive progress view:
  h        - Toggle status history
  q, Esc   - Stop watching (the pipeline keeps running)

Otherwise each status change is printed on its own line.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			err = fmt.Errorf("panic in progress view: %v", r)
		}
	}()

	if graphService == nil {
		return errors.New("graph service not configured")
	}

	if !isTerminal() {
		_, err = pollStatus(cmd, args[0])
		return err
	}
	rec, err := watchProgress(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("%s: %s\n", rec.UUID, stageOf(rec.Status))
	return nil
}
