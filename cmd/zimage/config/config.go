package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	QemuImgPath  string
	VmadmPath    string
	ZfsPath      string
	ManifestTool string
	OutputDir    string
	StepTimeout  time.Duration
	LogFormat    string // "text" or "json"
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		QemuImgPath:  getEnv("ZIMAGE_QEMU_IMG", "qemu-img"),
		VmadmPath:    getEnv("ZIMAGE_VMADM", "vmadm"),
		ZfsPath:      getEnv("ZIMAGE_ZFS", "zfs"),
		ManifestTool: getEnv("ZIMAGE_MANIFEST_TOOL", "create-manifest"),
		OutputDir:    getEnv("ZIMAGE_OUTPUT_DIR", "."),
		StepTimeout:  getDurationEnv("ZIMAGE_STEP_TIMEOUT", 0),
		LogFormat:    getEnv("ZIMAGE_LOG_FORMAT", "text"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
