package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/virtforge/zimage/cmd/zimage/config"
	"github.com/virtforge/zimage/lib/build"
	"github.com/virtforge/zimage/lib/manifest"
	"github.com/virtforge/zimage/lib/qemuimg"
	"github.com/virtforge/zimage/lib/runner"
	"github.com/virtforge/zimage/lib/vmadm"
	"github.com/virtforge/zimage/lib/zfs"
)

var (
	flagImage     string
	flagName      string
	flagOS        string
	flagOutputDir string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "zimage",
	Short: "Convert a disk image into a compressed ZFS image plus manifest",
	Long: `zimage converts a disk image (qcow2, vmdk or raw) into a gzip-compressed
ZFS send stream and a distributable image manifest. It provisions a
throwaway machine as the conversion target, streams the converted image
onto its block device, snapshots the volume, archives the snapshot and
deletes the machine again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagImage, "image", "i", "", "source disk image (qcow2, vmdk or raw)")
	rootCmd.Flags().StringVarP(&flagName, "name", "n", "", "base name for the produced artifacts")
	rootCmd.Flags().StringVarP(&flagOS, "os", "o", "", "os tag: bsd, illumos, linux, other, smartos or windows")
	rootCmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "directory for produced artifacts (default from config)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	// Required-input checks live in build.Request.Validate so that a
	// missing flag and an invalid value get the same treatment: error
	// plus usage text. Flag parse errors print usage the same way.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintln(os.Stderr, cmd.UsageString())
		return err
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	cfg := config.Load()
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	req := build.Request{
		ImagePath: flagImage,
		Name:      flagName,
		OS:        flagOS,
	}

	// Validate inputs before looking at the host at all, so a bad
	// invocation reports usage rather than a missing tool.
	if err := req.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, cmd.UsageString())
		return err
	}

	if err := preflight(cfg); err != nil {
		return err
	}

	// An interrupt kills the running external command and aborts the
	// pipeline; the conversion machine is still torn down.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New()
	builder := build.New(
		logger,
		qemuimg.New(r, cfg.QemuImgPath),
		vmadm.New(r, cfg.VmadmPath),
		zfs.New(r, cfg.ZfsPath),
		manifest.New(r, cfg.ManifestTool),
		cfg.OutputDir,
		build.WithStepTimeout(cfg.StepTimeout),
	)

	res, err := builder.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Image:    %s\n", res.ArchivePath)
	fmt.Printf("Manifest: %s\n", res.ManifestPath)
	return nil
}

// preflight checks the external tools exist before the pipeline touches
// anything.
func preflight(cfg *config.Config) error {
	for _, tool := range []string{cfg.QemuImgPath, cfg.VmadmPath, cfg.ZfsPath, cfg.ManifestTool} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("required tool not found: %s", tool)
		}
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
