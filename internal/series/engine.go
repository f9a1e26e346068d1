package series

import (
	"sort"
	"time"

	"github.com/kaloisi/water-temp/internal/wunderground"
)

// Point is one merged record: every station's temperature at one instant.
// A station missing from Temperatures has no reading at that instant; it is
// a gap in that station's line, never a zero.
type Point struct {
	// Time is the original observation timestamp string, the merge key.
	Time string `json:"time"`
	// Timestamp is Time converted to epoch milliseconds; emitted order is
	// strictly ascending by this value.
	Timestamp    int64              `json:"timestamp"`
	Temperatures map[string]float64 `json:"temperatures"`
}

// Series is the merged, deduplicated, time-sorted record set.
type Series []Point

// obsTimeLayout matches the provider's local timestamps ("2006-01-02 15:04:05").
const obsTimeLayout = "2006-01-02 15:04:05"

// BuildSeries merges per-station observation batches into one series.
// Batches need not be time-ordered; duplicate timestamps within one
// station's batch collapse to a single point (last write wins).
func BuildSeries(batches map[string][]wunderground.Observation) Series {
	points := make(map[string]*Point)
	foldBatches(points, batches)
	return flatten(points)
}

// UpsertRecent extends an existing series with fresh batches, typically just
// today's. Points already in the series are carried through untouched unless
// the new batches revise them; a revision may add or overwrite a station's
// value at a timestamp but never removes one. The optional now point is a
// synthetic sample built from current conditions, so the series reflects the
// very latest reading before the rapid feed has caught up.
func UpsertRecent(existing Series, batches map[string][]wunderground.Observation, now *Point) Series {
	points := make(map[string]*Point, len(existing))
	for _, p := range existing {
		cp := p
		cp.Temperatures = make(map[string]float64, len(p.Temperatures))
		for id, v := range p.Temperatures {
			cp.Temperatures[id] = v
		}
		points[cp.Time] = &cp
	}

	foldBatches(points, batches)

	if now != nil {
		cp := *now
		points[cp.Time] = &cp
	}

	return flatten(points)
}

func foldBatches(points map[string]*Point, batches map[string][]wunderground.Observation) {
	for stationID, observations := range batches {
		for _, obs := range observations {
			key := obs.ObsTimeLocal
			if key == "" {
				continue
			}

			p, ok := points[key]
			if !ok {
				epochMS, valid := epochMillis(obs)
				if !valid {
					continue
				}
				p = &Point{
					Time:         key,
					Timestamp:    epochMS,
					Temperatures: make(map[string]float64),
				}
				points[key] = p
			}

			if temp, defined := obs.Temperature(); defined {
				p.Temperatures[stationID] = temp
			}
		}
	}
}

func flatten(points map[string]*Point) Series {
	out := make(Series, 0, len(points))
	for _, p := range points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		// Distinct keys can share a millisecond; keep the order deterministic.
		return out[i].Time < out[j].Time
	})
	return out
}

// epochMillis converts an observation's timestamp to epoch milliseconds.
// The local timestamp string is canonical; the provider's epoch field is a
// fallback for malformed strings.
func epochMillis(obs wunderground.Observation) (int64, bool) {
	if ts, err := time.ParseInLocation(obsTimeLayout, obs.ObsTimeLocal, time.Local); err == nil {
		return ts.UnixMilli(), true
	}
	if ts, err := time.Parse(time.RFC3339, obs.ObsTimeLocal); err == nil {
		return ts.UnixMilli(), true
	}
	if obs.Epoch > 0 {
		return obs.Epoch * 1000, true
	}
	return 0, false
}
