// Package catalog holds the data model shared by every pipeline stage:
// file records produced by the scanner, candidate groups keyed by
// (device, size) and duplicate sets keyed by content digest.
package catalog

import (
	"fmt"
	"sort"
)

// FileID uniquely identifies a file by device and inode.
type FileID struct {
	Device uint64
	Inode  uint64
}

func (f FileID) String() string {
	return fmt.Sprintf("%d:%d", f.Device, f.Inode)
}

func (f FileID) Equal(other FileID) bool {
	return f.Device == other.Device && f.Inode == other.Inode
}

// GroupKey is the candidate-group key. Hardlinks cannot cross devices,
// so files on different devices are never candidates for each other.
type GroupKey struct {
	Device uint64
	Size   int64
}

// FileRecord is one regular file discovered by the scanner. Size is
// always > 0; zero-byte files are only counted, never cataloged.
// Digest stays empty until the duplicate resolver sets it, once.
type FileRecord struct {
	Path   string
	ID     FileID
	Size   int64
	Nlink  uint64
	Mode   uint32
	UID    uint32
	GID    uint32
	Digest string

	// StoreID is the primary key assigned by the external-store
	// backend; zero for in-memory records.
	StoreID int64
}

// CandidateGroup is a set of records sharing a (device, size) key.
type CandidateGroup struct {
	Key   GroupKey
	Files []*FileRecord
}

// DuplicateSet is a group of byte-identical files: same size, same
// device, same full-content digest. Files are sorted by path, so
// Files[0] is the canonical member.
type DuplicateSet struct {
	Digest string
	Size   int64
	Files  []*FileRecord
}

// Canonical returns the member preserved by consolidation actions.
func (s *DuplicateSet) Canonical() *FileRecord {
	return s.Files[0]
}

// WastedBytes is the space reclaimable by consolidating the set.
func (s *DuplicateSet) WastedBytes() uint64 {
	if len(s.Files) < 2 {
		return 0
	}
	return uint64(len(s.Files)-1) * uint64(s.Size)
}

// SortFiles orders members lexicographically by path. Canonical-member
// selection depends on this order being stable across runs.
func (s *DuplicateSet) SortFiles() {
	sort.Slice(s.Files, func(i, j int) bool {
		return s.Files[i].Path < s.Files[j].Path
	})
}

// SortSets orders sets by digest so report output is deterministic
// regardless of hashing completion order.
func SortSets(sets []DuplicateSet) {
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].Digest != sets[j].Digest {
			return sets[i].Digest < sets[j].Digest
		}
		return sets[i].Key() < sets[j].Key()
	})
}

// Key disambiguates sets sharing a digest across devices.
func (s *DuplicateSet) Key() string {
	if len(s.Files) == 0 {
		return s.Digest
	}
	return fmt.Sprintf("%s/%d", s.Digest, s.Files[0].ID.Device)
}
