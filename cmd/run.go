package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll for new posts and reply with snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, ok := cmd.Context().Value(appKey).(Runner)
			if !ok || runner == nil {
				return errors.New("application not initialized")
			}
			defer runner.Close()
			zap.L().Info("snapshill starting", zap.Bool("once", once))
			if once {
				return runner.RunOnce(cmd.Context())
			}
			return runner.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process a single window of posts and exit")
	return cmd
}
