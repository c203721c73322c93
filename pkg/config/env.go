package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads KEY=value pairs from the given .env files (or ./.env
// when none are given) into the process environment. Variables already
// set in the environment win. Missing files are not an error.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ConfigPathFromEnv returns CNCETI_CONFIG or fallback.
func ConfigPathFromEnv(fallback string) string {
	return getEnv("CNCETI_CONFIG", fallback)
}

// ApplyEnv overrides storage settings from CNCETI_* variables. It runs
// after the machine file so a deployment can point at a different disk
// mount or serial device without editing the file.
func (m *MachineConfig) ApplyEnv() {
	m.Storage.DiskRoot = getEnv("CNCETI_DISK_ROOT", m.Storage.DiskRoot)
	m.Storage.MassStorageDevice = getEnv("CNCETI_MASS_STORAGE_DEVICE", m.Storage.MassStorageDevice)
	m.Storage.MassStorageBaud = getEnvAsInt("CNCETI_MASS_STORAGE_BAUD", m.Storage.MassStorageBaud)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(name string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(name, "")); err == nil {
		return value
	}
	return defaultValue
}
