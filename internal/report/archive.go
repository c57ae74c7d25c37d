package report

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/lambdaspectre/internal/storage"
)

// ArchiveEpoch is the fixed future instant used for reverse-timestamp keys.
// Archive keys sort most-recent-first until this date; after it the
// difference turns negative and the ordering breaks.
var ArchiveEpoch = time.Date(2050, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	// ArchivePrefix is the directory holding the permanent summary history.
	ArchivePrefix = "summaries"

	summaryFilename = "summary.json"
	detailFilename  = "analysis.csv"
	batchDirectory  = "single_analysis"

	reverseTimestampDigits = 10
)

// ReverseTimestamp returns the zero-padded number of seconds from now until
// ArchiveEpoch. Later instants produce lexicographically smaller strings.
func ReverseTimestamp(now time.Time) string {
	remaining := ArchiveEpoch.Unix() - now.Unix()
	return fmt.Sprintf("%0*d", reverseTimestampDigits, remaining)
}

// SummaryLocation is the canonical summary of a report.
func SummaryLocation(bucket string, id ID) storage.Location {
	return storage.Location{Bucket: bucket, Directory: string(id), Filename: summaryFilename}
}

// DetailLocation is the consolidated detail table of a report.
func DetailLocation(bucket string, id ID) storage.Location {
	return storage.Location{Bucket: bucket, Directory: string(id), Filename: detailFilename}
}

// ArchiveLocation is the historical copy of a summary written at now.
func ArchiveLocation(bucket string, id ID, now time.Time) storage.Location {
	return storage.Location{
		Bucket:    bucket,
		Directory: ArchivePrefix,
		Filename:  ReverseTimestamp(now) + "_" + string(id) + ".json",
	}
}

// BatchDirectory is where the per-batch tables of a report are written.
func BatchDirectory(id ID) string {
	return path.Join(batchDirectory, string(id))
}

// ArchiveEntry is a parsed archive key.
type ArchiveEntry struct {
	Key      string    `json:"key"`
	ReportID ID        `json:"reportID"`
	Archived time.Time `json:"archived"`
}

// ParseArchiveKey decodes "summaries/<reverseTs>_<reportId>.json".
func ParseArchiveKey(key string) (ArchiveEntry, bool) {
	name := strings.TrimSuffix(path.Base(key), ".json")
	ts, id, ok := strings.Cut(name, "_")
	if !ok || id == "" {
		return ArchiveEntry{}, false
	}
	remaining, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ArchiveEntry{}, false
	}
	return ArchiveEntry{
		Key:      key,
		ReportID: ID(id),
		Archived: time.Unix(ArchiveEpoch.Unix()-remaining, 0).UTC(),
	}, true
}
