package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vk/gridcrawl/internal/task"
)

// ReportEntry is the outcome of one task as printed by the CLI.
type ReportEntry struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Bytes int    `json:"bytes"`
	Error string `json:"error,omitempty"`
}

// Report lists every task in registration order.
type Report struct {
	Entries []ReportEntry
	Failed  int
}

func newReport(keys []task.Key, results map[task.Key]task.Result) *Report {
	rep := &Report{Entries: make([]ReportEntry, 0, len(keys))}
	for _, key := range keys {
		res := results[key]
		entry := ReportEntry{Key: key.String(), OK: !res.Failed(), Bytes: len(res.Content)}
		if res.Failed() {
			entry.Error = res.Err.Error()
			rep.Failed++
		}
		rep.Entries = append(rep.Entries, entry)
	}
	return rep
}

func (r *Report) write(w io.Writer, format string) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.Entries)
	}

	for _, e := range r.Entries {
		var err error
		if e.OK {
			_, err = fmt.Fprintf(w, "%s\tOK\t%d bytes\n", e.Key, e.Bytes)
		} else {
			_, err = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, task.FailureMarker, e.Error)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
