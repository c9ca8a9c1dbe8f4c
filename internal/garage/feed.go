package garage

import "time"

type (
	// Feed is an external calendar registered against a vehicle, e.g. another rental platform's
	// export of the same car.
	Feed struct {
		ID           string     `db:"id"`
		VehicleID    string     `db:"vehicle_id"`
		URL          string     `db:"url"`
		Name         string     `db:"name"`
		LastSyncedAt *time.Time `db:"last_synced_at"`
		CreatedAt    time.Time  `db:"created_at"`
		UpdatedAt    time.Time  `db:"updated_at"`
	}

	// ExternalEvent mirrors one event of a feed. Only the ingestion service writes these.
	ExternalEvent struct {
		ID          string    `db:"id"`
		FeedID      string    `db:"feed_id"`
		VehicleID   string    `db:"vehicle_id"`
		ExternalUID string    `db:"external_uid"`
		Summary     string    `db:"summary"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
		Range
	}

	// SyncResult counts what a single feed sync did to the stored events.
	SyncResult struct {
		Added     int `json:"added"`
		Updated   int `json:"updated"`
		Removed   int `json:"removed"`
		Unchanged int `json:"unchanged"`
		// Events in the document that were dropped for being unreadable.
		Skipped int `json:"skipped"`
	}

	// SweepSummary reports a sync over every feed. Failures of individual feeds land here
	// rather than failing the sweep.
	SweepSummary struct {
		Feeds     int                   `json:"feeds"`
		Succeeded int                   `json:"succeeded"`
		Failed    int                   `json:"failed"`
		Results   map[string]SyncResult `json:"results"`
		Failures  map[string]string     `json:"failures"`
	}
)

func (e ExternalEvent) Interval() Interval {
	return Interval{Kind: SourceExternal, SourceID: e.ID, VehicleID: e.VehicleID, Range: e.Range}
}

// Changed reports whether anything was written.
func (r SyncResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

func NewSweepSummary() SweepSummary {
	return SweepSummary{
		Results:  map[string]SyncResult{},
		Failures: map[string]string{},
	}
}

// EventDiff is the set of writes that turns the stored events of a feed into the fetched ones.
type EventDiff struct {
	Insert    []ExternalEvent
	Update    []ExternalEvent // Carries the stored ID with the fetched fields
	Delete    []string        // Stored IDs
	Unchanged int
}

// DiffEvents reconciles by external UID. Fetched events without a stored counterpart are
// inserted, stored events missing from the fetch are deleted, and the rest are updated only
// when their summary or dates moved.
//
// If the fetched set carries a UID more than once, the last one wins.
func DiffEvents(stored, fetched []ExternalEvent) EventDiff {
	byUID := make(map[string]ExternalEvent, len(stored))
	for _, ev := range stored {
		byUID[ev.ExternalUID] = ev
	}

	latest := make(map[string]ExternalEvent, len(fetched))
	order := make([]string, 0, len(fetched))
	for _, ev := range fetched {
		if _, seen := latest[ev.ExternalUID]; !seen {
			order = append(order, ev.ExternalUID)
		}
		latest[ev.ExternalUID] = ev
	}

	var diff EventDiff
	for _, uid := range order {
		ev := latest[uid]
		old, ok := byUID[uid]
		if !ok {
			diff.Insert = append(diff.Insert, ev)
			continue
		}

		if old.Summary == ev.Summary && old.Start.Equal(ev.Start) && old.End.Equal(ev.End) {
			diff.Unchanged++
			continue
		}
		ev.ID = old.ID
		diff.Update = append(diff.Update, ev)
	}

	for _, old := range stored {
		if _, ok := latest[old.ExternalUID]; !ok {
			diff.Delete = append(diff.Delete, old.ID)
		}
	}

	return diff
}

// Result converts the diff into the counts reported to callers.
func (d EventDiff) Result() SyncResult {
	return SyncResult{
		Added:     len(d.Insert),
		Updated:   len(d.Update),
		Removed:   len(d.Delete),
		Unchanged: d.Unchanged,
	}
}
