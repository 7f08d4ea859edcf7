package qemuimg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/zimage/lib/runner/runnertest"
)

func TestInfo(t *testing.T) {
	fake := &runnertest.Fake{
		Handle: func(c runnertest.Call) ([]byte, error) {
			return []byte(`{
				"virtual-size": 5368709120,
				"filename": "disk.qcow2",
				"format": "qcow2",
				"actual-size": 1073741824,
				"dirty-flag": false
			}`), nil
		},
	}

	info, err := New(fake, "qemu-img").Info(context.Background(), "disk.qcow2")
	require.NoError(t, err)
	assert.Equal(t, int64(5368709120), info.VirtualSize)
	assert.Equal(t, "qcow2", info.Format)

	require.Len(t, fake.Calls, 1)
	assert.Equal(t, "qemu-img", fake.Calls[0].Name)
	assert.Equal(t, []string{"info", "--output=json", "disk.qcow2"}, fake.Calls[0].Args)
}

func TestInfoRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"not json", "qcow2 5G"},
		{"zero size", `{"virtual-size": 0, "format": "qcow2"}`},
		{"missing format", `{"virtual-size": 1024}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &runnertest.Fake{
				Handle: func(c runnertest.Call) ([]byte, error) { return []byte(tt.out), nil },
			}
			_, err := New(fake, "qemu-img").Info(context.Background(), "disk.qcow2")
			assert.Error(t, err)
		})
	}
}

func TestInfoPropagatesToolError(t *testing.T) {
	toolErr := errors.New("qemu-img: could not open image")
	fake := &runnertest.Fake{
		Handle: func(c runnertest.Call) ([]byte, error) { return nil, toolErr },
	}
	_, err := New(fake, "qemu-img").Info(context.Background(), "bogus.img")
	assert.ErrorIs(t, err, toolErr)
}

func TestConvert(t *testing.T) {
	fake := &runnertest.Fake{}
	err := New(fake, "qemu-img").Convert(context.Background(),
		"disk.qcow2", "qcow2", "/dev/zvol/rdsk/zones/abc-disk0")
	require.NoError(t, err)

	require.Len(t, fake.Calls, 1)
	assert.Equal(t, []string{
		"convert", "-f", "qcow2", "-O", "host_device",
		"disk.qcow2", "/dev/zvol/rdsk/zones/abc-disk0",
	}, fake.Calls[0].Args)
}
