package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/toolbelt/pkg/toolbelt"
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a single orchestration session and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		request := strings.Join(args, " ")
		session := a.newSession()

		events := make(chan toolbelt.Event, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", ev.Stage, ev.Message)
			}
		}()

		answer, err := session.Run(cmd.Context(), request, events)
		<-done
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
