package vmadm

// Manifest is the machine definition submitted to `vmadm create`. Only the
// fields the conversion target needs are modeled; vmadm fills in the rest.
type Manifest struct {
	Brand             string `json:"brand"`
	Alias             string `json:"alias"`
	Hostname          string `json:"hostname"`
	Autoboot          bool   `json:"autoboot"`
	RAM               int    `json:"ram"`
	MaxPhysicalMemory int    `json:"max_physical_memory"`
	Quota             int    `json:"quota"`
	Disks             []Disk `json:"disks"`
}

// Disk is a single disk entry in a machine manifest. Size is in megabytes.
type Disk struct {
	Boot  bool   `json:"boot"`
	Model string `json:"model"`
	Size  int64  `json:"size"`
}

const (
	targetBrand = "kvm"
	targetRAM   = 4096
)

// ConversionTarget builds the manifest for a throwaway machine used as a
// conversion target: never booted, one virtio boot disk sized to the source
// image, quota in gigabytes sized to hold both the zvol and the send stream.
func ConversionTarget(alias string, quotaGB int, diskSizeMB int64) Manifest {
	return Manifest{
		Brand:             targetBrand,
		Alias:             alias,
		Hostname:          alias,
		Autoboot:          false,
		RAM:               targetRAM,
		MaxPhysicalMemory: targetRAM,
		Quota:             quotaGB,
		Disks: []Disk{
			{Boot: true, Model: "virtio", Size: diskSizeMB},
		},
	}
}
