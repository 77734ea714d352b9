package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/backmassage/webpshrink/internal/check"
	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/logging"
	"github.com/backmassage/webpshrink/internal/pipeline"
	"github.com/backmassage/webpshrink/internal/watch"
)

func newWatchCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [folder...]",
		Short: "Re-encode files as they are added or changed",
		Long: `watch keeps running and re-encodes every matching file that is created or
modified under the given folders, after it has been quiet for a moment.
Existing files are left alone; run the root command once first to process them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, args, true, version)
			if err != nil {
				return err
			}
			defer a.log.Close()
			a.banner()
			if err := a.preparePaths(); err != nil {
				return err
			}
			a.logRunHeader()
			if err := check.CheckDeps(&a.cfg); err != nil {
				return err
			}

			// A changed source must be re-encoded even when its output exists.
			a.cfg.SkipExisting = false
			a.cfg.DryRun = false

			roots, missing, err := pipeline.CheckRoots(a.cfg.Roots)
			if err != nil {
				return err
			}
			for _, m := range missing {
				a.log.Warn("Skip (missing folder): %s", m)
			}
			if len(roots) == 0 {
				return errors.New("no folder to watch")
			}

			runner := pipeline.NewRunner(&a.cfg, a.log, nil)
			w, err := newWatcher(&a.cfg, a.log, runner, roots)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a.log.Info("Watching %d folder(s); press Ctrl+C to stop", len(roots))
			if err := w.Run(ctx); err != nil {
				return err
			}

			stats := runner.Stats()
			a.log.Info("Stopped: %d kept, %d reduced, %d above target, %d failed",
				stats.Kept, stats.Reduced, stats.Unreached, stats.Failed)
			return nil
		},
	}
}

// newWatcher feeds settled paths under roots to runner, ignoring events on
// the files runner writes. Roots are made absolute first so event names
// line up with runner.DestFor.
func newWatcher(cfg *config.Config, log *logging.Logger, runner *pipeline.Runner, roots []string, opts ...watch.Option) (*watch.Watcher, error) {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		p, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve folder %s: %w", r, err)
		}
		abs = append(abs, p)
	}
	target := func(p string) string {
		dest, err := runner.DestFor(p)
		if err != nil {
			return ""
		}
		return dest
	}
	opts = append([]watch.Option{watch.WithTarget(target)}, opts...)
	return watch.New(abs, cfg.Exts, cfg.Recursive, runner.ProcessPath, log, opts...)
}
