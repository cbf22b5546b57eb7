package constants

import "strings"

// Snapshot file naming.
const (
	SnapshotExt          = ".json"
	FullSnapshotPrefix   = "cobrancas_backup_"
	FullSnapshotLayout   = "20060102_150405"
	LatestSnapshotName   = "cobrancas_latest.json"
	LatestSnapshotPeriod = "last_24_hours"
)

// FullSnapshotName returns the timestamped filename for a full export.
func FullSnapshotName(stamp string) string {
	return FullSnapshotPrefix + stamp + SnapshotExt
}

// IsSnapshotFile reports whether name looks like a snapshot file.
func IsSnapshotFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), SnapshotExt)
}
