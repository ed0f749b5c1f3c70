package storage

import (
	"encoding/json"
	"math"
	"time"

	"theta_watcher/internal/logger"
	"theta_watcher/internal/models"
)

// decode parses raw, upgrading older schemas first. migrated reports
// whether the document changed and should be written back.
func decode(raw []byte, now time.Time) (models.PortfolioState, bool, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.PortfolioState{}, false, err
	}

	migrated := migrate(doc, now)

	b, err := json.Marshal(doc)
	if err != nil {
		return models.PortfolioState{}, false, err
	}
	var st models.PortfolioState
	if err := json.Unmarshal(b, &st); err != nil {
		return models.PortfolioState{}, false, err
	}
	return st, migrated, nil
}

// migrate applies each schema step in order.
func migrate(doc map[string]any, now time.Time) bool {
	version, _ := doc["version"].(string)
	updated := false

	// Unversioned documents: local "YYYY-MM-DD HH:MM" timestamps, epoch
	// seconds in the action log and IV cache, settings nested under "settings".
	if version < "2.0" {
		logger.Infof("migrating state schema from %q to 2.0", version)
		migrateLegacyTimes(doc, now)
		if settings, ok := doc["settings"].(map[string]any); ok {
			if w, ok := settings["watchlist"]; ok {
				doc["watchlist"] = w
			}
			if g, ok := settings["daily_profit_goal"]; ok {
				doc["daily_profit_goal"] = g
			}
			delete(doc, "settings")
		}
		delete(doc, "used_tips")
		doc["version"] = "2.0"
		updated = true
	}

	return updated
}

func migrateLegacyTimes(doc map[string]any, now time.Time) {
	for _, t := range objects(doc["trades"]) {
		for _, key := range []string{"opened", "closed_time"} {
			if v, ok := t[key]; ok {
				if ts, ok := toTimestamp(v, now); ok {
					t[key] = ts
				} else {
					delete(t, key)
				}
			}
		}
	}

	for _, e := range objects(doc["action_queue"]) {
		if ts, ok := toTimestamp(e["epoch"], now); ok {
			e["time"] = ts
		}
		delete(e, "epoch")
	}

	if ivr, ok := doc["last_ivr"].(map[string]any); ok {
		for _, rec := range ivr {
			if r, ok := rec.(map[string]any); ok {
				if ts, ok := toTimestamp(r["ts"], now); ok {
					r["ts"] = ts
				} else {
					delete(r, "ts")
				}
			}
		}
	}

	doc["scan_history"] = keepTimed(objects(doc["scan_history"]), now)
	doc["performance"] = keepTimed(objects(doc["performance"]), now)
}

// keepTimed converts each entry's "time" and drops entries without one.
func keepTimed(entries []map[string]any, now time.Time) []any {
	out := []any{}
	for _, e := range entries {
		ts, ok := toTimestamp(e["time"], now)
		if !ok {
			continue
		}
		e["time"] = ts
		out = append(out, e)
	}
	return out
}

func objects(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

var legacyLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// toTimestamp reads RFC 3339, the legacy local layouts, a bare clock time
// (taken as today) or epoch seconds.
func toTimestamp(v any, now time.Time) (string, bool) {
	switch x := v.(type) {
	case float64:
		if x <= 0 || math.IsInf(x, 0) || math.IsNaN(x) {
			return "", false
		}
		sec, frac := math.Modf(x)
		return time.Unix(int64(sec), int64(frac*1e9)).Format(time.RFC3339Nano), true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.Format(time.RFC3339Nano), true
		}
		for _, layout := range legacyLayouts {
			if t, err := time.ParseInLocation(layout, x, time.Local); err == nil {
				return t.Format(time.RFC3339Nano), true
			}
		}
		if clock, err := time.ParseInLocation("15:04:05", x, time.Local); err == nil {
			local := now.In(time.Local)
			y, m, d := local.Date()
			t := time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, time.Local)
			return t.Format(time.RFC3339Nano), true
		}
	}
	return "", false
}
