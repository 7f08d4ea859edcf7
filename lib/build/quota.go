package build

import "github.com/c2h5oh/datasize"

// quotaHeadroomGB is added on top of the source image size so the target
// dataset can hold both the written zvol and the snapshot send stream.
const quotaHeadroomGB = 10

// QuotaGB computes the dataset quota in gigabytes for a source image of
// sizeBytes: the floor of the size in GiB plus a fixed headroom.
func QuotaGB(sizeBytes int64) int {
	return int(uint64(sizeBytes)/datasize.GB.Bytes()) + quotaHeadroomGB
}

// SizeMB converts a byte size to whole megabytes, truncating.
func SizeMB(sizeBytes int64) int64 {
	return int64(uint64(sizeBytes) / datasize.MB.Bytes())
}
