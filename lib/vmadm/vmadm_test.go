package vmadm

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtforge/zimage/lib/runner/runnertest"
)

const testUUID = "9acb2b6c-2b04-4f4c-9f5b-3b2c7f3f7f10"

func TestConversionTargetManifest(t *testing.T) {
	m := ConversionTarget("Ubuntu", 15, 5120)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "kvm", got["brand"])
	assert.Equal(t, "Ubuntu", got["alias"])
	assert.Equal(t, "Ubuntu", got["hostname"])
	assert.Equal(t, false, got["autoboot"])
	assert.Equal(t, float64(4096), got["ram"])
	assert.Equal(t, float64(4096), got["max_physical_memory"])
	assert.Equal(t, float64(15), got["quota"])

	disks := got["disks"].([]any)
	require.Len(t, disks, 1)
	disk := disks[0].(map[string]any)
	assert.Equal(t, true, disk["boot"])
	assert.Equal(t, "virtio", disk["model"])
	assert.Equal(t, float64(5120), disk["size"])
}

func TestCreate(t *testing.T) {
	fake := &runnertest.Fake{
		Handle: func(c runnertest.Call) ([]byte, error) {
			return []byte("Successfully created VM " + testUUID + "\n"), nil
		},
	}

	id, err := New(fake, "vmadm").Create(context.Background(), strings.NewReader(`{"brand":"kvm"}`))
	require.NoError(t, err)
	assert.Equal(t, testUUID, id)

	require.Len(t, fake.Calls, 1)
	assert.Equal(t, "vmadm", fake.Calls[0].Name)
	assert.Equal(t, []string{"create"}, fake.Calls[0].Args)
	assert.Equal(t, `{"brand":"kvm"}`, string(fake.Calls[0].Stdin))
}

func TestParseCreateOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{"confirmation line", "Successfully created VM " + testUUID, testUUID, false},
		{"trailing noise", "some warning\nSuccessfully created VM " + testUUID + "\n", testUUID, false},
		{"no uuid", "Successfully created VM", "", true},
		{"garbage identifier", "Successfully created VM not-a-uuid", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCreateOutput(tt.out)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGet(t *testing.T) {
	fake := &runnertest.Fake{
		Handle: func(c runnertest.Call) ([]byte, error) {
			return []byte(`{
				"uuid": "` + testUUID + `",
				"state": "stopped",
				"disks": [{
					"path": "/dev/zvol/rdsk/zones/` + testUUID + `-disk0",
					"zfs_filesystem": "zones/` + testUUID + `-disk0",
					"model": "virtio",
					"boot": true,
					"size": 5120
				}]
			}`), nil
		},
	}

	m, err := New(fake, "vmadm").Get(context.Background(), testUUID)
	require.NoError(t, err)
	assert.Equal(t, testUUID, m.UUID)
	assert.Equal(t, []string{"get", testUUID}, fake.Calls[0].Args)

	disk, err := m.BootDisk()
	require.NoError(t, err)
	assert.Equal(t, "zones/"+testUUID+"-disk0", disk.ZFSFilesystem)
	assert.Equal(t, "/dev/zvol/rdsk/zones/"+testUUID+"-disk0", disk.Path)
}

func TestBootDisk(t *testing.T) {
	t.Run("prefers flagged boot disk", func(t *testing.T) {
		m := &Machine{Disks: []MachineDisk{
			{Path: "/dev/a"},
			{Path: "/dev/b", Boot: true},
		}}
		disk, err := m.BootDisk()
		require.NoError(t, err)
		assert.Equal(t, "/dev/b", disk.Path)
	})

	t.Run("falls back to first disk", func(t *testing.T) {
		m := &Machine{Disks: []MachineDisk{{Path: "/dev/a"}}}
		disk, err := m.BootDisk()
		require.NoError(t, err)
		assert.Equal(t, "/dev/a", disk.Path)
	})

	t.Run("no disks", func(t *testing.T) {
		m := &Machine{}
		_, err := m.BootDisk()
		assert.ErrorIs(t, err, ErrNoBootDisk)
	})
}

func TestDelete(t *testing.T) {
	fake := &runnertest.Fake{}
	err := New(fake, "vmadm").Delete(context.Background(), testUUID)
	require.NoError(t, err)
	assert.Equal(t, []string{"delete", testUUID}, fake.Calls[0].Args)
}
