package build

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

// SupportedOS is the closed set of OS tags an image may be published under.
var SupportedOS = []string{"bsd", "illumos", "linux", "other", "smartos", "windows"}

// Request describes one image build.
type Request struct {
	// ImagePath is the source disk image (qcow2, vmdk or raw).
	ImagePath string
	// Name is the base name for the produced artifacts.
	Name string
	// OS is the OS tag, matched case-insensitively against SupportedOS.
	OS string
}

// Validate checks the request and normalizes the OS tag to lower case.
// An OS tag outside SupportedOS is a hard failure; nothing downstream
// should run with an unclassifiable image.
func (r *Request) Validate() error {
	if r.ImagePath == "" {
		return ErrMissingImage
	}
	if r.Name == "" {
		return ErrMissingName
	}
	if r.OS == "" {
		return ErrMissingOS
	}
	r.OS = strings.ToLower(r.OS)
	if !lo.Contains(SupportedOS, r.OS) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnknownOS, r.OS, strings.Join(SupportedOS, ", "))
	}
	return checkSource(r.ImagePath)
}

// checkSource verifies the source exists, is a regular file and is readable,
// before any external tool touches it.
func checkSource(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return fmt.Errorf("stat source: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrSourceNotRegular, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSourceNotReadable, path)
	}
	f.Close()
	return nil
}
