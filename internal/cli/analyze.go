package cli

import (
	"github.com/spf13/cobra"

	"github.com/backmassage/webpshrink/internal/pipeline"
)

func newAnalyzeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [folder...]",
		Short: "Report dimensions and sizes without writing anything",
		Long: `analyze reads only image headers and prints one row per file with its
dimensions and size. Files above the max dimension are flagged [resize],
files above the target size [over], and size outliers by IQR [*] or [!].`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, args, true, version)
			if err != nil {
				return err
			}
			defer a.log.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := pipeline.Analyze(ctx, &a.cfg, a.log, a.out); err != nil {
				if ctx.Err() != nil {
					return errInterrupted
				}
				return err
			}
			return nil
		},
	}
}
