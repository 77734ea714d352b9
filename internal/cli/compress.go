package cli

import (
	"context"

	"github.com/backmassage/webpshrink/internal/check"
	"github.com/backmassage/webpshrink/internal/pipeline"
)

// compress runs one batch over the configured roots.
func (a *app) compress(parent context.Context) error {
	a.banner()
	if err := a.preparePaths(); err != nil {
		return err
	}
	a.logRunHeader()

	if err := check.CheckDeps(&a.cfg); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	stats, err := pipeline.Run(ctx, &a.cfg, a.log)
	switch {
	case ctx.Err() != nil:
		return errInterrupted
	case err != nil:
		return err
	case stats.Failed > 0:
		return errFilesFailed
	}
	return nil
}
