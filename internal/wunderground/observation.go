package wunderground

// apiResponse is the envelope every PWS endpoint returns.
type apiResponse struct {
	Observations []Observation `json:"observations"`
}

// UnitReadings holds the unit-specific nesting of a PWS observation.
// Current-conditions responses carry instantaneous values, history and
// rapid responses carry per-interval aggregates; pointers distinguish
// "absent" from zero.
type UnitReadings struct {
	Temp    *float64 `json:"temp"`
	TempAvg *float64 `json:"tempAvg"`
}

// Observation is one timestamped reading from one station. The provider
// returns different shapes for current, rapid and historical queries, so
// every temperature field is optional.
type Observation struct {
	StationID    string        `json:"stationID"`
	ObsTimeLocal string        `json:"obsTimeLocal"`
	ObsTimeUTC   string        `json:"obsTimeUtc"`
	Epoch        int64         `json:"epoch"`
	TempAvg      *float64      `json:"tempAvg"`
	Imperial     *UnitReadings `json:"imperial"`
	Metric       *UnitReadings `json:"metric"`
}

// temperatureExtractors is the ordered list of places a temperature may live.
// First defined value wins; later entries cover older response variants.
var temperatureExtractors = []func(Observation) (float64, bool){
	func(o Observation) (float64, bool) {
		if o.TempAvg != nil {
			return *o.TempAvg, true
		}
		return 0, false
	},
	func(o Observation) (float64, bool) {
		if o.Imperial != nil && o.Imperial.TempAvg != nil {
			return *o.Imperial.TempAvg, true
		}
		return 0, false
	},
	func(o Observation) (float64, bool) {
		if o.Imperial != nil && o.Imperial.Temp != nil {
			return *o.Imperial.Temp, true
		}
		return 0, false
	},
	func(o Observation) (float64, bool) {
		if o.Metric != nil && o.Metric.TempAvg != nil {
			return *o.Metric.TempAvg, true
		}
		return 0, false
	},
}

// Temperature extracts the reading's temperature, trying each known response
// shape in precedence order. ok is false when the observation carries no
// temperature at all; that is a gap, not a zero.
func (o Observation) Temperature() (float64, bool) {
	for _, extract := range temperatureExtractors {
		if v, ok := extract(o); ok {
			return v, true
		}
	}
	return 0, false
}
