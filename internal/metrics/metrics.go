// Package metrics recomputes dashboard aggregates on demand from the
// immutable query log. Nothing here keeps running state: every call is a
// pure function over the records it is handed.
package metrics

import (
	"sort"
	"time"

	"docqa/internal/models"
)

const dateLayout = "2006-01-02"

// Options captures the aggregation policies that are deliberate choices
// rather than math.
type Options struct {
	// OmitEmptyDaySuccessRate drops zero-query days from the success-rate
	// series instead of reporting the default rate of 0.
	OmitEmptyDaySuccessRate bool
}

// windowDates returns the UTC calendar dates of the last `days` days ending
// at now, oldest first.
func windowDates(days int, now time.Time) []string {
	if days <= 0 {
		days = 7
	}
	end := now.UTC()
	out := make([]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, end.AddDate(0, 0, -i).Format(dateLayout))
	}
	return out
}

// DailyVolume counts queries per UTC calendar date, zero-filled for days
// with no activity.
func DailyVolume(records []models.QueryRecord, days int, now time.Time) []models.DailyQueryVolume {
	dates := windowDates(days, now)
	counts := make(map[string]int, len(dates))
	for _, r := range records {
		counts[r.CreatedAt.UTC().Format(dateLayout)]++
	}
	out := make([]models.DailyQueryVolume, 0, len(dates))
	for _, d := range dates {
		out = append(out, models.DailyQueryVolume{Date: d, Count: counts[d]})
	}
	return out
}

// AverageLatency reports mean latency per day. Days with zero queries are
// omitted: an average over nothing is undefined, not zero.
func AverageLatency(records []models.QueryRecord, days int, now time.Time) []models.AverageLatency {
	dates := windowDates(days, now)
	sums := make(map[string]int64, len(dates))
	counts := make(map[string]int, len(dates))
	for _, r := range records {
		d := r.CreatedAt.UTC().Format(dateLayout)
		sums[d] += r.LatencyMs
		counts[d]++
	}
	out := make([]models.AverageLatency, 0, len(dates))
	for _, d := range dates {
		if counts[d] == 0 {
			continue
		}
		out = append(out, models.AverageLatency{Date: d, AvgMillis: float64(sums[d]) / float64(counts[d])})
	}
	return out
}

// SuccessRates reports completed/(completed+error) per day. A day with zero
// queries reports 0 by convention, or is omitted when
// Options.OmitEmptyDaySuccessRate is set.
func SuccessRates(records []models.QueryRecord, days int, now time.Time, opts Options) []models.SuccessRate {
	dates := windowDates(days, now)
	completed := make(map[string]int, len(dates))
	total := make(map[string]int, len(dates))
	for _, r := range records {
		d := r.CreatedAt.UTC().Format(dateLayout)
		total[d]++
		if r.Status == models.QueryCompleted {
			completed[d]++
		}
	}
	out := make([]models.SuccessRate, 0, len(dates))
	for _, d := range dates {
		if total[d] == 0 {
			if opts.OmitEmptyDaySuccessRate {
				continue
			}
			out = append(out, models.SuccessRate{Date: d, Rate: 0})
			continue
		}
		out = append(out, models.SuccessRate{Date: d, Rate: float64(completed[d]) / float64(total[d])})
	}
	return out
}

// TopQueries groups by exact query text (case-sensitive), ranks by
// frequency descending, breaks ties by most recent occurrence, and
// truncates to limit.
func TopQueries(records []models.QueryRecord, limit int) []models.TopQuery {
	if limit <= 0 {
		limit = 10
	}
	counts := make(map[string]int)
	lastSeen := make(map[string]time.Time)
	for _, r := range records {
		counts[r.QueryText]++
		if r.CreatedAt.After(lastSeen[r.QueryText]) {
			lastSeen[r.QueryText] = r.CreatedAt
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return lastSeen[keys[i]].After(lastSeen[keys[j]])
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]models.TopQuery, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.TopQuery{QueryText: k, Count: counts[k]})
	}
	return out
}

// TopDocuments ranks documents by how often they appear as a Source across
// the window's queries, with the same tie policy as TopQueries.
func TopDocuments(records []models.QueryRecord, limit int) []models.TopDocument {
	if limit <= 0 {
		limit = 10
	}
	counts := make(map[string]int)
	names := make(map[string]string)
	lastSeen := make(map[string]time.Time)
	for _, r := range records {
		for _, s := range r.Sources {
			counts[s.DocumentID]++
			names[s.DocumentID] = s.FileName
			if r.CreatedAt.After(lastSeen[s.DocumentID]) {
				lastSeen[s.DocumentID] = r.CreatedAt
			}
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return lastSeen[keys[i]].After(lastSeen[keys[j]])
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]models.TopDocument, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.TopDocument{DocumentID: k, FileName: names[k], Count: counts[k]})
	}
	return out
}

func Summary(records []models.QueryRecord, days, limit int, now time.Time, opts Options) models.MetricsSummary {
	return models.MetricsSummary{
		QueryVolume:  DailyVolume(records, days, now),
		Latency:      AverageLatency(records, days, now),
		SuccessRate:  SuccessRates(records, days, now, opts),
		TopQueries:   TopQueries(records, limit),
		TopDocuments: TopDocuments(records, limit),
	}
}
