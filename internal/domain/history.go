package domain

import "time"

// HistoryEntry is the persisted summary of one finished pipeline run.
type HistoryEntry struct {
	ID         string         `json:"id"`
	Reference  MediaReference `json:"reference"`
	Flavor     string         `json:"flavor"`
	Stage      Stage          `json:"stage"`
	Kind       ResultKind     `json:"kind,omitempty"`
	Quality    Quality        `json:"quality,omitempty"`
	Files      []string       `json:"files,omitempty"`
	Bytes      int64          `json:"bytes"`
	Suspicious bool           `json:"suspicious"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// HistoryFromReport summarises a finished report.
func HistoryFromReport(id string, r *Report) HistoryEntry {
	entry := HistoryEntry{
		ID:         id,
		Reference:  r.Reference,
		Flavor:     r.Flavor,
		Stage:      r.Stage(),
		Bytes:      r.TotalBytes(),
		Suspicious: r.AnySuspicious(),
		Quality:    r.Quality,
		Error:      r.Error,
		CreatedAt:  r.StartedAt,
	}
	if r.Result != nil {
		entry.Kind = r.Result.Kind
	}
	for _, o := range r.Outcomes {
		entry.Files = append(entry.Files, o.Path)
	}
	return entry
}
