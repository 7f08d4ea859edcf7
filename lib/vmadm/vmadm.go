package vmadm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/virtforge/zimage/lib/runner"
)

var (
	// ErrNoIdentifier is returned when `vmadm create` succeeds but its
	// confirmation output does not contain a parseable machine UUID.
	ErrNoIdentifier = errors.New("no machine identifier in vmadm output")
	// ErrNoBootDisk is returned when a machine has no disk to convert onto.
	ErrNoBootDisk = errors.New("machine has no boot disk")
)

// Machine is the subset of `vmadm get` output the pipeline needs.
type Machine struct {
	UUID  string        `json:"uuid"`
	State string        `json:"state"`
	Disks []MachineDisk `json:"disks"`
}

// MachineDisk describes one provisioned disk of a machine.
type MachineDisk struct {
	Path          string `json:"path"`
	ZFSFilesystem string `json:"zfs_filesystem"`
	Model         string `json:"model"`
	Boot          bool   `json:"boot"`
	Size          int64  `json:"size"`
}

// BootDisk returns the machine's boot disk, falling back to the first disk
// when none is flagged bootable.
func (m *Machine) BootDisk() (*MachineDisk, error) {
	for i := range m.Disks {
		if m.Disks[i].Boot {
			return &m.Disks[i], nil
		}
	}
	if len(m.Disks) > 0 {
		return &m.Disks[0], nil
	}
	return nil, ErrNoBootDisk
}

// Client wraps the vmadm binary.
type Client struct {
	bin string
	run runner.Runner
}

// New creates a vmadm client. bin is the binary path or name.
func New(run runner.Runner, bin string) *Client {
	return &Client{bin: bin, run: run}
}

// Create submits a machine manifest (JSON on stdin) and returns the UUID of
// the created machine. vmadm prints its confirmation as a human-readable
// line, so the identifier is scraped out of it and validated as a UUID
// rather than trusted blindly.
func (c *Client) Create(ctx context.Context, manifest io.Reader) (string, error) {
	out, err := c.run.CombinedOutput(ctx, manifest, c.bin, "create")
	if err != nil {
		return "", fmt.Errorf("create machine: %w", err)
	}
	id, err := parseCreateOutput(string(out))
	if err != nil {
		return "", fmt.Errorf("%w\noutput:\n%s", err, out)
	}
	return id, nil
}

// Get looks up a machine as structured JSON.
func (c *Client) Get(ctx context.Context, id string) (*Machine, error) {
	out, err := c.run.Output(ctx, c.bin, "get", id)
	if err != nil {
		return nil, fmt.Errorf("get machine %s: %w", id, err)
	}
	var m Machine
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, fmt.Errorf("parse machine %s: %w", id, err)
	}
	return &m, nil
}

// Delete destroys a machine and its disks.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.run.Run(ctx, c.bin, "delete", id); err != nil {
		return fmt.Errorf("delete machine %s: %w", id, err)
	}
	return nil
}

// parseCreateOutput extracts the machine UUID from vmadm's confirmation,
// e.g. "Successfully created VM 0f2ee95e-...".
func parseCreateOutput(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		candidate := fields[len(fields)-1]
		if _, err := uuid.Parse(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNoIdentifier
}
