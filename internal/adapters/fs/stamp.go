// Package fs provides filesystem adapters: file metadata stamps and name
// hashing for command signatures.
package fs

import (
	"os"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/anvil/internal/core/domain"
)

// Stamp captures the file metadata for path. A missing or unreadable file
// yields the zero stamp.
func Stamp(path string) domain.FileInfo {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileInfo{}
	}

	mod := info.ModTime()
	return domain.FileInfo{
		Mode: uint64(info.Mode()),
		Size: uint64(info.Size()),
		ModTime: domain.FileTimestamp{
			Seconds:     uint64(mod.Unix()),
			Nanoseconds: uint64(mod.Nanosecond()),
		},
	}
}

// HashString returns the xxhash64 of s, used to fingerprint node names and
// command arguments.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}
