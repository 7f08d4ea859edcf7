package qemuimg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/virtforge/zimage/lib/runner"
)

// ImageInfo is the subset of `qemu-img info --output=json` the pipeline needs.
type ImageInfo struct {
	VirtualSize int64  `json:"virtual-size"`
	Format      string `json:"format"`
}

// Client wraps the qemu-img binary.
type Client struct {
	bin string
	run runner.Runner
}

// New creates a qemu-img client. bin is the binary path or name.
func New(run runner.Runner, bin string) *Client {
	return &Client{bin: bin, run: run}
}

// Info inspects a disk image and returns its virtual size and on-disk format.
// The image is always re-inspected; nothing is cached.
func (c *Client) Info(ctx context.Context, path string) (*ImageInfo, error) {
	out, err := c.run.Output(ctx, c.bin, "info", "--output=json", path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}

	var info ImageInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse image info: %w\noutput:\n%s", err, out)
	}
	if info.VirtualSize <= 0 {
		return nil, fmt.Errorf("image info for %s reports no virtual size", path)
	}
	if info.Format == "" {
		return nil, fmt.Errorf("image info for %s reports no format", path)
	}
	return &info, nil
}

// Convert streams the source image onto a raw block device, reinterpreting
// it from srcFormat. The copy is destructive and non-resumable: a failure
// leaves the device partially written.
func (c *Client) Convert(ctx context.Context, src, srcFormat, device string) error {
	if err := c.run.Run(ctx, c.bin, "convert", "-f", srcFormat, "-O", "host_device", src, device); err != nil {
		return fmt.Errorf("convert %s to %s: %w", src, device, err)
	}
	return nil
}
