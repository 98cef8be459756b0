//go:build windows

package scanner

import (
	"github.com/pkg/errors"

	"github.com/dedupfs/dfm/pkg/catalog"
)

// Hardlink accounting needs stable device/inode identity, which Windows
// only exposes through per-handle file information. Not supported yet.
func statRecord(path string) (*catalog.FileRecord, error) {
	return nil, errors.New("windows is not supported")
}
