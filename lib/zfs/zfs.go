package zfs

import (
	"context"
	"fmt"
	"io"

	"github.com/virtforge/zimage/lib/runner"
)

// Client wraps the zfs binary.
type Client struct {
	bin string
	run runner.Runner
}

// New creates a zfs client. bin is the binary path or name.
func New(run runner.Runner, bin string) *Client {
	return &Client{bin: bin, run: run}
}

// Snapshot takes a point-in-time snapshot of dataset tagged with tag and
// returns the full snapshot name. zfs fails if the snapshot already exists;
// that error is propagated as-is so reruns within the same tag collide
// loudly instead of overwriting anything.
func (c *Client) Snapshot(ctx context.Context, dataset, tag string) (string, error) {
	name := fmt.Sprintf("%s@%s", dataset, tag)
	if err := c.run.Run(ctx, c.bin, "snapshot", name); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", name, err)
	}
	return name, nil
}

// Send serializes a snapshot stream into w.
func (c *Client) Send(ctx context.Context, snapshot string, w io.Writer) error {
	if err := c.run.Stream(ctx, w, c.bin, "send", snapshot); err != nil {
		return fmt.Errorf("send %s: %w", snapshot, err)
	}
	return nil
}
