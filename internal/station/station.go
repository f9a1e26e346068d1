package station

import "fmt"

// DashboardBaseURL is the public per-station dashboard; append the station id.
const DashboardBaseURL = "https://www.wunderground.com/dashboard/pws/"

// Station identifies a single physical weather station.
// The set of stations is fixed at process start; identity is the id.
type Station struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"name"`
}

// DashboardURL returns the public dashboard page for this station.
func (s Station) DashboardURL() string {
	return DashboardBaseURL + s.ID
}

// Registry is the immutable set of monitored stations.
type Registry struct {
	stations []Station
	byID     map[string]Station
}

// NewRegistry builds a registry from the configured stations.
func NewRegistry(stations []Station) (*Registry, error) {
	if len(stations) == 0 {
		return nil, fmt.Errorf("at least one station must be configured")
	}

	byID := make(map[string]Station, len(stations))
	for _, s := range stations {
		if s.ID == "" {
			return nil, fmt.Errorf("station with empty id")
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %q", s.ID)
		}
		byID[s.ID] = s
	}

	return &Registry{stations: stations, byID: byID}, nil
}

// List returns the stations in configured order.
func (r *Registry) List() []Station {
	out := make([]Station, len(r.stations))
	copy(out, r.stations)
	return out
}

// Lookup returns the station with the given id.
func (r *Registry) Lookup(id string) (Station, bool) {
	s, ok := r.byID[id]
	return s, ok
}
