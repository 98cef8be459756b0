//go:build unix

package scanner

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/dedupfs/dfm/pkg/catalog"
)

// statRecord builds a record from a single lstat call. The walk already
// established the entry is a regular file, but the type is re-checked
// in case it changed between the readdir and the stat.
func statRecord(path string) (*catalog.FileRecord, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, errors.Wrap(err, "lstat file")
	}

	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, errors.New("not a regular file")
	}

	return &catalog.FileRecord{
		Path: path,
		ID: catalog.FileID{
			Device: uint64(st.Dev),
			Inode:  uint64(st.Ino),
		},
		Size:  st.Size,
		Nlink: uint64(st.Nlink),
		Mode:  uint32(st.Mode),
		UID:   st.Uid,
		GID:   st.Gid,
	}, nil
}
