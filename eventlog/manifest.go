package eventlog

// manifestRecordKind discriminates the two attestation shapes the
// manifest.jsonl file carries (spec.md §3.3).
type manifestRecordKind string

const (
	manifestKindSegmentClosed  manifestRecordKind = "segment_closed"
	manifestKindSnapshotPinned manifestRecordKind = "snapshot_pinned"
)

// manifestRecord is the on-disk shape of a single manifest.jsonl line.
// Exactly one of SegmentClosed/SnapshotPinned is populated, selected by
// Kind; this mirrors the tagged-union discipline spec.md §9 calls for.
type manifestRecord struct {
	Kind           manifestRecordKind    `json:"kind"`
	SegmentClosed  *segmentClosedFields  `json:"segmentClosed,omitempty"`
	SnapshotPinned *snapshotPinnedFields `json:"snapshotPinned,omitempty"`
}

type segmentClosedFields struct {
	FirstEventIndex int64  `json:"firstEventIndex"`
	LastEventIndex  int64  `json:"lastEventIndex"`
	SegmentRelPath  string `json:"segmentRelPath"`
	Sha256          string `json:"sha256"`
	Bytes           int64  `json:"bytes"`
}

type snapshotPinnedFields struct {
	SnapshotRef      string `json:"snapshotRef"`
	EventIndex       int64  `json:"eventIndex"`
	CreatedByEventID string `json:"createdByEventId"`
}
