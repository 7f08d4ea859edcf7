package manifest

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/virtforge/zimage/lib/runner"
)

// Params carries everything the manifest helper needs to describe an image.
type Params struct {
	ArchivePath string
	Name        string
	SizeMB      int64
	Version     string
	OS          string
}

// Emitter produces the distributable image manifest by delegating to an
// external helper program and capturing its stdout verbatim. The helper owns
// the manifest format; this is a pure pass-through.
type Emitter struct {
	bin string
	run runner.Runner
}

// New creates a manifest emitter. bin is the helper binary path or name.
func New(run runner.Runner, bin string) *Emitter {
	return &Emitter{bin: bin, run: run}
}

// Emit runs the helper and writes its output to outPath.
func (e *Emitter) Emit(ctx context.Context, outPath string, p Params) error {
	out, err := e.run.Output(ctx, e.bin,
		"-f", p.ArchivePath,
		"-n", p.Name,
		"-s", strconv.FormatInt(p.SizeMB, 10),
		"-v", p.Version,
		"-o", p.OS,
	)
	if err != nil {
		return fmt.Errorf("generate manifest: %w", err)
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
