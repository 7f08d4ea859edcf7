package build

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/nrednav/cuid2"

	"github.com/virtforge/zimage/lib/archive"
	"github.com/virtforge/zimage/lib/manifest"
	"github.com/virtforge/zimage/lib/qemuimg"
	"github.com/virtforge/zimage/lib/vmadm"
)

// stampLayout gives build timestamps hour granularity. Reruns within the
// same hour produce identically named artifacts and fail at the exclusive
// archive create rather than silently overwriting each other.
const stampLayout = "2006010215"

type imageTool interface {
	Info(ctx context.Context, path string) (*qemuimg.ImageInfo, error)
	Convert(ctx context.Context, src, srcFormat, device string) error
}

type machineTool interface {
	Create(ctx context.Context, manifest io.Reader) (string, error)
	Get(ctx context.Context, id string) (*vmadm.Machine, error)
	Delete(ctx context.Context, id string) error
}

type snapshotTool interface {
	Snapshot(ctx context.Context, dataset, tag string) (string, error)
	Send(ctx context.Context, snapshot string, w io.Writer) error
}

type manifestTool interface {
	Emit(ctx context.Context, outPath string, p manifest.Params) error
}

// Builder runs the image build pipeline: inspect the source, provision a
// throwaway machine sized to it, stream the converted image onto the
// machine's block device, snapshot the volume, archive the snapshot and
// emit a manifest. Steps run strictly in sequence; the first error aborts
// the build, but a machine that was created is always deleted.
type Builder struct {
	log      *slog.Logger
	images   imageTool
	machines machineTool
	snaps    snapshotTool
	emitter  manifestTool

	outputDir   string
	scratchDir  string
	stepTimeout time.Duration
	now         func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithStepTimeout bounds each external command with a deadline.
// Zero means no deadline.
func WithStepTimeout(d time.Duration) Option {
	return func(b *Builder) { b.stepTimeout = d }
}

// WithScratchDir sets where the transient machine manifest is written.
func WithScratchDir(dir string) Option {
	return func(b *Builder) { b.scratchDir = dir }
}

// WithClock overrides the build timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a Builder writing its artifacts to outputDir.
func New(log *slog.Logger, images imageTool, machines machineTool, snaps snapshotTool, emitter manifestTool, outputDir string, opts ...Option) *Builder {
	b := &Builder{
		log:        log,
		images:     images,
		machines:   machines,
		snaps:      snaps,
		emitter:    emitter,
		outputDir:  outputDir,
		scratchDir: os.TempDir(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result is the state accumulated across pipeline steps.
type Result struct {
	MachineID    string
	Stamp        string
	SourceFormat string
	SourceSizeMB int64
	QuotaGB      int
	Device       string
	Dataset      string
	Snapshot     string
	ArchivePath  string
	ArchiveBytes int64
	ArchiveSHA1  string
	ManifestPath string
}

// Run executes the pipeline for req.
func (b *Builder) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Stamp: b.now().Format(stampLayout)}
	log := b.log.With("name", req.Name, "stamp", res.Stamp)

	if err := b.inspect(ctx, req, res); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "inspected source image",
		"path", req.ImagePath,
		"format", res.SourceFormat,
		"size_mb", res.SourceSizeMB,
		"quota_gb", res.QuotaGB)

	id, err := b.provision(ctx, req, res)
	if err != nil {
		return nil, err
	}
	res.MachineID = id
	log.InfoContext(ctx, "created conversion machine", "machine", id)

	// The machine is ours from here on: delete it on every exit path,
	// including cancellation, without clobbering the pipeline error.
	defer func() {
		dctx, cancel := b.stepCtx(context.WithoutCancel(ctx))
		defer cancel()
		if derr := b.machines.Delete(dctx, id); derr != nil {
			log.ErrorContext(ctx, "delete conversion machine", "machine", id, "error", derr)
			return
		}
		log.InfoContext(ctx, "deleted conversion machine", "machine", id)
	}()

	if err := b.locateDisk(ctx, id, res); err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "converting source image", "format", res.SourceFormat, "device", res.Device)
	if err := b.convert(ctx, req, res); err != nil {
		return nil, err
	}

	if err := b.snapshot(ctx, res); err != nil {
		return nil, err
	}

	if err := b.archiveSnapshot(ctx, req, res); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "archived snapshot",
		"snapshot", res.Snapshot,
		"archive", res.ArchivePath,
		"compressed_size", datasize.ByteSize(res.ArchiveBytes).HumanReadable(),
		"sha1", res.ArchiveSHA1)

	if err := b.emitManifest(ctx, req, res); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "wrote image manifest", "manifest", res.ManifestPath)

	return res, nil
}

func (b *Builder) inspect(ctx context.Context, req Request, res *Result) error {
	sctx, cancel := b.stepCtx(ctx)
	defer cancel()

	info, err := b.images.Info(sctx, req.ImagePath)
	if err != nil {
		return err
	}
	res.SourceFormat = info.Format
	res.SourceSizeMB = SizeMB(info.VirtualSize)
	res.QuotaGB = QuotaGB(info.VirtualSize)
	return nil
}

// provision writes the machine manifest to a scratch file, submits it and
// returns the new machine's identifier. The scratch file is removed before
// returning regardless of outcome.
func (b *Builder) provision(ctx context.Context, req Request, res *Result) (string, error) {
	m := vmadm.ConversionTarget(req.Name, res.QuotaGB, res.SourceSizeMB)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal machine manifest: %w", err)
	}

	scratch := filepath.Join(b.scratchDir, fmt.Sprintf("zimage-%s.json", cuid2.Generate()))
	if err := os.WriteFile(scratch, data, 0600); err != nil {
		return "", fmt.Errorf("write machine manifest: %w", err)
	}
	defer os.Remove(scratch)

	f, err := os.Open(scratch)
	if err != nil {
		return "", fmt.Errorf("open machine manifest: %w", err)
	}
	defer f.Close()

	sctx, cancel := b.stepCtx(ctx)
	defer cancel()
	return b.machines.Create(sctx, f)
}

// locateDisk reads the machine back as structured JSON and records its boot
// disk's raw device path and backing dataset.
func (b *Builder) locateDisk(ctx context.Context, id string, res *Result) error {
	sctx, cancel := b.stepCtx(ctx)
	defer cancel()

	machine, err := b.machines.Get(sctx, id)
	if err != nil {
		return err
	}
	disk, err := machine.BootDisk()
	if err != nil {
		return fmt.Errorf("machine %s: %w", id, err)
	}
	if disk.Path == "" || disk.ZFSFilesystem == "" {
		return fmt.Errorf("machine %s disk is missing device path or dataset", id)
	}
	res.Device = disk.Path
	res.Dataset = disk.ZFSFilesystem
	return nil
}

func (b *Builder) convert(ctx context.Context, req Request, res *Result) error {
	sctx, cancel := b.stepCtx(ctx)
	defer cancel()
	return b.images.Convert(sctx, req.ImagePath, res.SourceFormat, res.Device)
}

func (b *Builder) snapshot(ctx context.Context, res *Result) error {
	sctx, cancel := b.stepCtx(ctx)
	defer cancel()

	snap, err := b.snaps.Snapshot(sctx, res.Dataset, res.Stamp)
	if err != nil {
		return err
	}
	res.Snapshot = snap
	return nil
}

// archiveSnapshot serializes the snapshot through the compressor into the
// output file. A failed send removes the partial archive.
func (b *Builder) archiveSnapshot(ctx context.Context, req Request, res *Result) error {
	res.ArchivePath = filepath.Join(b.outputDir, fmt.Sprintf("%s-%s.zfs.gz", req.Name, res.Stamp))
	w, err := archive.Create(res.ArchivePath)
	if err != nil {
		return err
	}

	sctx, cancel := b.stepCtx(ctx)
	defer cancel()
	if err := b.snaps.Send(sctx, res.Snapshot, w); err != nil {
		w.Abort()
		return err
	}
	if err := w.Close(); err != nil {
		w.Abort()
		return err
	}

	res.ArchiveBytes = w.Size()
	res.ArchiveSHA1 = w.SHA1()
	return nil
}

func (b *Builder) emitManifest(ctx context.Context, req Request, res *Result) error {
	res.ManifestPath = filepath.Join(b.outputDir, fmt.Sprintf("%s-%s.json", req.Name, res.Stamp))

	sctx, cancel := b.stepCtx(ctx)
	defer cancel()
	return b.emitter.Emit(sctx, res.ManifestPath, manifest.Params{
		ArchivePath: res.ArchivePath,
		Name:        req.Name,
		SizeMB:      res.SourceSizeMB,
		Version:     res.Stamp,
		OS:          req.OS,
	})
}

func (b *Builder) stepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.stepTimeout > 0 {
		return context.WithTimeout(ctx, b.stepTimeout)
	}
	return context.WithCancel(ctx)
}
