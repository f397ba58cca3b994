package explorer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
)

// The upstream explorer API is not one schema: different deployments
// wrap the activity array and name record fields differently. Decoding
// is an explicit list of known shapes, so supporting a new deployment
// is one entry here instead of ad hoc probing at call sites.

// activityKeys are the known wrapper keys for the activity array.
var activityKeys = []string{"transactions", "transitions", "items", "records", "data"}

// statusKeys are the known names of the per-record status field.
var statusKeys = []string{"status", "state", "result"}

// timestampKeys are the known names of the per-record activity timestamp.
var timestampKeys = []string{"timestamp", "time", "created_at", "block_timestamp"}

// failureStatuses are the status values that count a record as failed.
// Anything else, including a missing status field, counts as succeeded.
var failureStatuses = map[string]bool{
	"rejected": true,
	"failed":   true,
	"aborted":  true,
	"reverted": true,
}

// record is one normalized activity record.
type record struct {
	succeeded bool
	timestamp *time.Time
}

// decodeActivity extracts activity records from a response body.
// Shape A: a top-level JSON array. Shape B: an object wrapping the
// array under one of activityKeys. An object without any known key is
// malformed; an empty array is a valid quiet reading.
func decodeActivity(body []byte) ([]record, error) {
	var asArray []map[string]any
	if err := json.Unmarshal(body, &asArray); err == nil {
		return normalizeRecords(asArray), nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("parse activity response: %w", err)
	}
	for _, key := range activityKeys {
		raw, ok := asObject[key]
		if !ok {
			continue
		}
		var wrapped []map[string]any
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("parse activity array under %q: %w", key, err)
		}
		return normalizeRecords(wrapped), nil
	}
	return nil, fmt.Errorf("no recognizable activity array in response")
}

func normalizeRecords(raw []map[string]any) []record {
	records := make([]record, 0, len(raw))
	for _, m := range raw {
		records = append(records, record{
			succeeded: !failureStatuses[recordStatus(m)],
			timestamp: recordTimestamp(m),
		})
	}
	return records
}

func recordStatus(m map[string]any) string {
	for _, key := range statusKeys {
		if v, ok := m[key].(string); ok {
			return v
		}
	}
	return ""
}

func recordTimestamp(m map[string]any) *time.Time {
	for _, key := range timestampKeys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if ts := parseTimestamp(v); ts != nil {
			return ts
		}
	}
	return nil
}

// parseTimestamp normalizes the timestamp encodings seen upstream:
// RFC 3339 strings and unix epochs in seconds or milliseconds.
func parseTimestamp(v any) *time.Time {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil
		}
		parsed = parsed.UTC()
		return &parsed
	case float64:
		if t <= 0 {
			return nil
		}
		var parsed time.Time
		if t > 1e12 { // epoch millis
			parsed = time.UnixMilli(int64(t)).UTC()
		} else {
			parsed = time.Unix(int64(t), 0).UTC()
		}
		return &parsed
	default:
		return nil
	}
}

// buildSample folds the decoded activity window into a raw sample.
// Counts cover only the observed window, so Total always equals
// Succeeded plus Failed.
func buildSample(
	id domain.ProgramID,
	endpoint string,
	records []record,
	fetchedAt time.Time,
) domain.RawSample {
	var succeeded int64
	var last *time.Time
	for _, r := range records {
		if r.succeeded {
			succeeded++
		}
		if r.timestamp != nil && (last == nil || r.timestamp.After(*last)) {
			ts := *r.timestamp
			last = &ts
		}
	}

	total := int64(len(records))
	return domain.RawSample{
		ProgramID:      id,
		Total:          total,
		Succeeded:      succeeded,
		Failed:         total - succeeded,
		LastActivityAt: last,
		Endpoint:       endpoint,
		FetchedAt:      fetchedAt,
	}
}
