package eventlog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/ids"
)

// Store is the durable, segmented, manifest-attested event log described
// by spec.md §3.2-§3.3, §4.3. All mutation happens through Append, which
// requires a witness obtainable only from the execution session gate.
type Store struct {
	fs      fsx.FS
	dataDir fsx.DataDir
}

// New returns a Store rooted at dataDir.
func New(fs fsx.FS, dataDir fsx.DataDir) *Store {
	return &Store{fs: fs, dataDir: dataDir}
}

// Append performs the seven-step commit procedure of spec.md §4.3 under
// the caller's already-held session lock (attested to by witness): filter
// already-applied events by dedupeKey, assign dense eventIndex values,
// write one new segment file, attest it in the manifest, then attest any
// snapshot pins the new events reference. A witness revoked by its gate
// callback's return is rejected outright.
func (s *Store) Append(witness *Witness, batch Batch) error {
	if !witness.valid() {
		return &Error{Code: CodeInvariantViolation, Detail: "witness misuse-after-release"}
	}
	sessionID := witness.SessionID()

	log, err := s.Load(sessionID)
	if err != nil {
		return err
	}

	nextIndex := int64(len(log.Events))
	if nextIndex > 0 {
		nextIndex = log.Events[len(log.Events)-1].EventIndex + 1
	}

	assigned := make([]*Event, len(batch.Events))
	seenInBatch := make(map[string]*Event, len(batch.Events))
	var fresh []Event
	for i, pe := range batch.Events {
		if _, exists := log.DedupeKeyExists(pe.DedupeKey); exists {
			assigned[i] = nil
			continue
		}
		if prior, ok := seenInBatch[pe.DedupeKey]; ok {
			assigned[i] = prior
			continue
		}
		ev := Event{
			V:          1,
			EventIndex: nextIndex,
			EventID:    ids.NewEventID(),
			SessionID:  sessionID,
			Scope:      pe.Scope,
			DedupeKey:  pe.DedupeKey,
			Kind:       pe.Kind,
			Data:       pe.Data,
		}
		nextIndex++
		assigned[i] = &ev
		seenInBatch[pe.DedupeKey] = &ev
		fresh = append(fresh, ev)
	}

	if len(fresh) == 0 {
		return nil // idempotent replay of an already-applied batch: no I/O.
	}

	segRelPath, digest, size, err := s.writeSegment(sessionID, fresh)
	if err != nil {
		return err
	}

	segRecord := manifestRecord{
		Kind: manifestKindSegmentClosed,
		SegmentClosed: &segmentClosedFields{
			FirstEventIndex: fresh[0].EventIndex,
			LastEventIndex:  fresh[len(fresh)-1].EventIndex,
			SegmentRelPath:  segRelPath,
			Sha256:          digest,
			Bytes:           size,
		},
	}
	if err := s.appendManifestRecords(sessionID, []manifestRecord{segRecord}); err != nil {
		return err
	}

	var pinRecords []manifestRecord
	for _, pin := range batch.Pins {
		if pin.SourceOffset < 0 || pin.SourceOffset >= len(assigned) {
			return &Error{Code: CodeInvariantViolation, Detail: fmt.Sprintf("pin source offset %d out of range", pin.SourceOffset)}
		}
		src := assigned[pin.SourceOffset]
		if src == nil {
			// The referencing event was itself a dedupe no-op; its pin was
			// already attested in the batch that first created it.
			continue
		}
		pinRecords = append(pinRecords, manifestRecord{
			Kind: manifestKindSnapshotPinned,
			SnapshotPinned: &snapshotPinnedFields{
				SnapshotRef:      pin.SnapshotRef,
				EventIndex:       src.EventIndex,
				CreatedByEventID: string(src.EventID),
			},
		})
	}
	if len(pinRecords) > 0 {
		if err := s.appendManifestRecords(sessionID, pinRecords); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the manifest, verifies every attested segment's digest, and
// returns the fully materialized, eventIndex-ordered log (spec.md §4.3
// Load contract). Orphan segment files with no attestation are ignored.
func (s *Store) Load(sessionID ids.SessionID) (*Log, error) {
	manifestPath := s.dataDir.SessionManifestPath(string(sessionID))
	b, err := s.fs.ReadFile(manifestPath)
	if err != nil {
		if isNotFound(err) {
			return &Log{}, nil // fresh session: empty log.
		}
		return nil, &Error{Code: CodeIO, Detail: "read manifest", Err: err}
	}

	var events []Event
	var pins []SnapshotPinRecord
	lines := splitLines(b)
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		var rec manifestRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &Error{Code: CodeCorruption, Location: LocationTail, Detail: fmt.Sprintf("manifest line %d unparsable", i), Err: err}
		}
		switch rec.Kind {
		case manifestKindSegmentClosed:
			f := rec.SegmentClosed
			segEvents, err := s.readAndVerifySegment(sessionID, f)
			if err != nil {
				return nil, err
			}
			events = append(events, segEvents...)
		case manifestKindSnapshotPinned:
			f := rec.SnapshotPinned
			pins = append(pins, SnapshotPinRecord{
				SnapshotRef:      f.SnapshotRef,
				EventIndex:       f.EventIndex,
				CreatedByEventID: ids.EventID(f.CreatedByEventID),
			})
		default:
			return nil, &Error{Code: CodeCorruption, Location: LocationTail, Detail: fmt.Sprintf("manifest line %d has unknown kind %q", i, rec.Kind)}
		}
	}

	if err := checkPinAfterClose(events, pins); err != nil {
		return nil, err
	}

	return &Log{Events: events, Pins: pins}, nil
}

// List returns one cursor-paginated page of sessionID's events, ordered by
// eventIndex. cursor is the NextCursor of a previous page, or "" to start
// from the beginning. It is a read path for external dashboard/heartbeat
// tooling, distinct from Load's full-log materialization the state
// machine relies on for replay.
func (s *Store) List(sessionID ids.SessionID, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, &Error{Code: CodeInvariantViolation, Detail: "limit must be > 0"}
	}

	var after int64 = -1
	if cursor != "" {
		idx, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return Page{}, &Error{Code: CodeInvariantViolation, Detail: fmt.Sprintf("invalid cursor %q", cursor), Err: err}
		}
		after = idx
	}

	log, err := s.Load(sessionID)
	if err != nil {
		return Page{}, err
	}

	start := 0
	for start < len(log.Events) && log.Events[start].EventIndex <= after {
		start++
	}
	end := start + limit
	if end > len(log.Events) {
		end = len(log.Events)
	}
	if start >= len(log.Events) {
		return Page{}, nil
	}

	page := append([]Event(nil), log.Events[start:end]...)
	var next string
	if end < len(log.Events) {
		next = strconv.FormatInt(page[len(page)-1].EventIndex, 10)
	}
	return Page{Events: page, NextCursor: next}, nil
}

// checkPinAfterClose enforces spec.md §8.1 property 5: every attested
// event that carries a snapshotRef must have a matching snapshot_pinned
// manifest record, or the segment that produced it was closed without its
// pin ever becoming durable.
func checkPinAfterClose(events []Event, pins []SnapshotPinRecord) error {
	pinned := make(map[string]bool, len(pins))
	for _, p := range pins {
		pinned[p.SnapshotRef] = true
	}
	for _, e := range events {
		ref := e.carriedSnapshotRef()
		if ref == "" {
			continue
		}
		if !pinned[ref] {
			return &Error{
				Code:     CodeCorruption,
				Reason:   ReasonPinAfterClose,
				Location: LocationTail,
				Detail:   fmt.Sprintf("event %s references snapshotRef %s with no durable pin", e.EventID, ref),
			}
		}
	}
	return nil
}

func (s *Store) readAndVerifySegment(sessionID ids.SessionID, f *segmentClosedFields) ([]Event, error) {
	path := filepath.Join(s.dataDir.SessionEventsDir(string(sessionID)), f.SegmentRelPath)
	b, err := s.fs.ReadFile(path)
	if err != nil {
		if isNotFound(err) {
			return nil, &Error{Code: CodeCorruption, Reason: ReasonMissingAttestedSegment, Location: LocationTail, Detail: f.SegmentRelPath, Err: err}
		}
		return nil, &Error{Code: CodeIO, Detail: "read segment " + f.SegmentRelPath, Err: err}
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	if digest != f.Sha256 {
		return nil, &Error{Code: CodeCorruption, Reason: ReasonDigestMismatch, Location: LocationTail, Detail: f.SegmentRelPath}
	}
	if int64(len(b)) != f.Bytes {
		return nil, &Error{Code: CodeCorruption, Reason: ReasonDigestMismatch, Location: LocationTail, Detail: f.SegmentRelPath + " length mismatch"}
	}

	var events []Event
	for _, line := range splitLines(b) {
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, &Error{Code: CodeCorruption, Reason: ReasonDigestMismatch, Location: LocationTail, Detail: "segment line unparsable", Err: err}
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *Store) writeSegment(sessionID ids.SessionID, events []Event) (relPath, digestHex string, size int64, err error) {
	var buf bytes.Buffer
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return "", "", 0, &Error{Code: CodeIO, Detail: "marshal event", Err: err}
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	data := buf.Bytes()
	sum := sha256.Sum256(data)
	digestHex = hex.EncodeToString(sum[:])

	relPath = fmt.Sprintf("%d-%d.jsonl", events[0].EventIndex, events[len(events)-1].EventIndex)
	eventsDir := s.dataDir.SessionEventsDir(string(sessionID))
	if err := s.fs.MkdirAll(eventsDir); err != nil {
		return "", "", 0, &Error{Code: CodeIO, Detail: "mkdir events dir", Err: err}
	}
	path := filepath.Join(eventsDir, relPath)
	if err := s.fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", "", 0, &Error{Code: CodeIO, Detail: "write segment", Err: err}
	}
	return relPath, digestHex, int64(len(data)), nil
}

func (s *Store) appendManifestRecords(sessionID ids.SessionID, recs []manifestRecord) error {
	sessionDir := s.dataDir.SessionDir(string(sessionID))
	if err := s.fs.MkdirAll(sessionDir); err != nil {
		return &Error{Code: CodeIO, Detail: "mkdir session dir", Err: err}
	}
	manifestPath := s.dataDir.SessionManifestPath(string(sessionID))
	h, err := s.fs.OpenAppend(manifestPath, 0o644)
	if err != nil {
		return &Error{Code: CodeIO, Detail: "open manifest for append", Err: err}
	}
	var buf bytes.Buffer
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			_ = h.Close()
			return &Error{Code: CodeIO, Detail: "marshal manifest record", Err: err}
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	if err := h.WriteAll(buf.Bytes()); err != nil {
		_ = h.Close()
		return &Error{Code: CodeIO, Detail: "write manifest record", Err: err}
	}
	if err := h.Sync(); err != nil {
		_ = h.Close()
		return &Error{Code: CodeIO, Detail: "fsync manifest", Err: err}
	}
	if err := h.Close(); err != nil {
		return &Error{Code: CodeIO, Detail: "close manifest", Err: err}
	}
	eventsDir := s.dataDir.SessionEventsDir(string(sessionID))
	if err := s.fs.FsyncDir(eventsDir); err != nil {
		return &Error{Code: CodeIO, Detail: "fsync events dir", Err: err}
	}
	return nil
}

func splitLines(b []byte) [][]byte {
	trimmed := bytes.TrimRight(b, "\n")
	if len(trimmed) == 0 {
		return nil
	}
	return bytes.Split(trimmed, []byte("\n"))
}

func isNotFound(err error) bool {
	return errors.Is(err, fsx.ErrNotFound)
}
