package notice

// Mode describes what a run should do after diffing against stored state.
type Mode string

const (
	// ModeBootstrap records the current notices as seen without notifying.
	ModeBootstrap Mode = "bootstrap"
	// ModeUnchanged means every fetched notice was already seen.
	ModeUnchanged Mode = "unchanged"
	// ModeNotify means at least one notice is new and a digest is due.
	ModeNotify Mode = "notify"
)

// DefaultMaxSeenIDs caps the persisted seen-id list.
const DefaultMaxSeenIDs = 2000

// DiffResult contains the outcome of comparing fetched notices with the seen set
type DiffResult struct {
	Mode       Mode
	NewNotices []Notice
	SeenIDs    []string // replacement sequence to persist, most recent first
}

// Diff compares the current notices against the previously seen ids.
//
// When initialized is false the run is a bootstrap: every current id becomes
// seen and nothing is reported as new. Otherwise new notices are returned in
// fetch order, and SeenIDs holds the merged, capped sequence the caller should
// persist once the digest went out.
func Diff(initialized bool, seenIDs []string, current []Notice, limit int) *DiffResult {
	if limit <= 0 {
		limit = DefaultMaxSeenIDs
	}

	if !initialized {
		return &DiffResult{
			Mode:       ModeBootstrap,
			NewNotices: []Notice{},
			SeenIDs:    MergeSeen(IDs(current), nil, limit),
		}
	}

	seen := make(map[string]bool, len(seenIDs))
	for _, id := range seenIDs {
		seen[id] = true
	}

	fresh := make([]Notice, 0)
	for _, n := range Dedup(current) {
		if !seen[n.ID] {
			fresh = append(fresh, n)
		}
	}

	if len(fresh) == 0 {
		return &DiffResult{
			Mode:       ModeUnchanged,
			NewNotices: fresh,
			SeenIDs:    MergeSeen(seenIDs, nil, limit),
		}
	}

	return &DiffResult{
		Mode:       ModeNotify,
		NewNotices: fresh,
		SeenIDs:    MergeSeen(IDs(current), seenIDs, limit),
	}
}

// MergeSeen builds a seen-id sequence of at most limit entries. Ids visible in
// the current fetch come first in fetch order, then previously seen ids fill
// the remaining room, so ids still on the live pages outlive stale ones.
func MergeSeen(current, previous []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxSeenIDs
	}
	merged := make([]string, 0, min(limit, len(current)+len(previous)))
	included := make(map[string]bool, cap(merged))

	for _, list := range [][]string{current, previous} {
		for _, id := range list {
			if len(merged) >= limit {
				return merged
			}
			if id == "" || included[id] {
				continue
			}
			included[id] = true
			merged = append(merged, id)
		}
	}

	return merged
}
