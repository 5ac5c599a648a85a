package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tweet-harvester/internal/app"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <tweet-id-or-url>",
		Short: "Print the text of a single tweet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			a, err := app.New(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.Resolver().Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}
