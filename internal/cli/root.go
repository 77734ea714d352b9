// Package cli provides the command-line interface for webpshrink.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backmassage/webpshrink/internal/check"
	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/display"
	"github.com/backmassage/webpshrink/internal/logging"
)

// Exit statuses.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

var (
	// errFilesFailed means the command ran to completion but some files
	// failed; the details were already logged.
	errFilesFailed = errors.New("one or more files failed")
	errInterrupted = errors.New("interrupted")
)

// app is the per-invocation state shared by the subcommands.
type app struct {
	cfg     config.Config
	log     *logging.Logger
	version string
	out     io.Writer
}

// Execute runs the command tree against os.Args and returns the process
// exit status.
func Execute(version, commit string) int {
	return run(os.Args[1:], os.Stdout, os.Stderr, version, commit)
}

func run(args []string, stdout, stderr io.Writer, version, commit string) int {
	root := NewRootCmd(version, commit)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errInterrupted):
		return ExitInterrupted
	case errors.Is(err, errFilesFailed):
		return ExitFailure
	default:
		fmt.Fprintf(stderr, "webpshrink: %v\n", err)
		return ExitFailure
	}
}

// NewRootCmd creates the root command. Running it without a subcommand
// compresses the given roots.
func NewRootCmd(version, commit string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "webpshrink [flags] [folder...]",
		Short: "Re-encode images to WebP under a target file size",
		Long: `webpshrink re-encodes the images found in each folder to lossy WebP.
Images larger than the max dimension are downsampled first; each file is then
encoded at the start quality and, while it is still above the target size,
re-encoded at lower qualities down to the quality floor.

Files are rewritten in place unless --out is given.`,
		Example: `  webpshrink ./photos
  webpshrink --numbered 1-21 --target-kb 1500
  webpshrink -r -e webp,png,jpg --out ./small ./camera`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, args, true, version)
			if err != nil {
				return err
			}
			defer a.log.Close()
			return a.compress(cmd.Context())
		},
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newAnalyzeCmd(version),
		newWatchCmd(version),
		newCheckCmd(version),
		newVersionCmd(version, commit),
	)
	return rootCmd
}

func newVersionCmd(version, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "webpshrink %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
		},
	}
}

func newCheckCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run an encoder self-test and print supported formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd, args, false, version)
			if err != nil {
				return err
			}
			defer a.log.Close()
			a.banner()
			if !check.RunCheck(&a.cfg, a.log) {
				return errFilesFailed
			}
			return nil
		},
	}
}

// bootstrap loads and validates config, then opens the logger. Errors here
// are printed by run since no logger exists yet.
func bootstrap(cmd *cobra.Command, args []string, requireRoots bool, version string) (*app, error) {
	cfg, err := config.Load(cmd.Flags(), args)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(requireRoots); err != nil {
		return nil, err
	}
	log, err := logging.NewLogger(&cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, version: version, out: cmd.OutOrStdout()}, nil
}

func (a *app) banner() {
	display.PrintBanner(a.out, a.version)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// preparePaths creates the output directory and rejects an output inside a
// root, which would make later runs pick up their own outputs. Missing roots
// are left for discovery to report.
func (a *app) preparePaths() error {
	if a.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory %s: %w", a.cfg.OutputDir, err)
	}
	outputAbs, err := absPath(a.cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("cannot resolve output path %s: %w", a.cfg.OutputDir, err)
	}
	var rootsAbs []string
	for _, r := range a.cfg.Roots {
		if abs, err := absPath(r); err == nil {
			rootsAbs = append(rootsAbs, abs)
		}
	}
	if err := a.cfg.ValidatePaths(rootsAbs, outputAbs); err != nil {
		return fmt.Errorf("%w; choose an output path outside the scanned folders", err)
	}
	return nil
}

func (a *app) logRunHeader() {
	a.log.Info("=== webpshrink v%s ===", a.version)
	for _, r := range a.cfg.Roots {
		a.log.Info("In:  %s", r)
	}
	if a.cfg.OutputDir != "" {
		a.log.Info("Out: %s", a.cfg.OutputDir)
	}
	if a.cfg.LogFile != "" {
		a.log.Info("Log: %s", a.cfg.LogFile)
	}
}

// absPath returns the absolute path with symlinks resolved, for comparing
// root and output hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
