package catalog

// RunStats aggregates the counters of one pipeline run. Each stage
// fills in its own fields and the driver merges them into the final
// summary; nothing here is shared mutable state between stages.
type RunStats struct {
	FilesScanned         int64
	ZeroByte             int64
	Filtered             int64
	ScanErrors           int64
	UniqueSizeEliminated int64
	HardlinkEliminated   int64
	FilesHashed          int64
	HashFailures         int64
	DuplicateSets        int64
	DuplicateFiles       int64
	WastedBytes          uint64
}

// Merge adds other's counters into s.
func (s *RunStats) Merge(other RunStats) {
	s.FilesScanned += other.FilesScanned
	s.ZeroByte += other.ZeroByte
	s.Filtered += other.Filtered
	s.ScanErrors += other.ScanErrors
	s.UniqueSizeEliminated += other.UniqueSizeEliminated
	s.HardlinkEliminated += other.HardlinkEliminated
	s.FilesHashed += other.FilesHashed
	s.HashFailures += other.HashFailures
	s.DuplicateSets += other.DuplicateSets
	s.DuplicateFiles += other.DuplicateFiles
	s.WastedBytes += other.WastedBytes
}
