// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration paths.
package constants

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "aqc"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "aqc"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// LogDirName is the directory inside a package that holds operational files
	// (checksum lists, manifests). Sorts first so it is easy to spot in listings.
	LogDirName = "aa_logs"

	// ManifestPrefix is the file name prefix for batch QC manifests.
	ManifestPrefix = "qc_manifest_"

	// ManifestExt is the extension for batch QC manifests.
	ManifestExt = ".json"

	// ChunkSize is the read chunk size used when hashing or copying files.
	ChunkSize = 16 * 1024 * 1024

	// OperatorFilenameSuffix is the suffix of operator profile files.
	OperatorFilenameSuffix = "-operator.toml"

	// DefaultProgressInterval is how many files are hashed between progress log lines.
	DefaultProgressInterval = 100

	// DefaultSeedLogRetries is how many times an append to a locked seed log is retried.
	DefaultSeedLogRetries = 3
)

var (
	// DefaultConfigPath is the default app user configuration path. It's overridden when imported.
	DefaultConfigPath = DefaultAppFolder
)

func init() {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		panic(fmt.Sprintf("Could not fetch config directory: %v", err))
	}

	DefaultConfigPath = filepath.Join(userConfigDir, DefaultConfigPath)
}
