package domain

import "time"

// ProcessedFile is the ledger record for one (pipeline, file) key.
type ProcessedFile struct {
	PipelineName string
	FileName     string
	FileVersion  time.Time
	ProcessedAt  time.Time
}

// NormalizeVersion maps a blob timestamp onto the precision the ledger can
// store (UTC, microseconds), so that a stored version compares equal to the
// one it was recorded from.
//
// Versions are compared after normalization: a blob that is newer than the
// recorded version by less than a microsecond normalizes to the same value
// and is skipped as unchanged.
func NormalizeVersion(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
