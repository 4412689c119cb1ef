package input

import (
	"math"
)

const earthRadiusM = 6371000.0

// projectMap converts every lon/lat coordinate in m into the local meter
// grid via the map's GPSBounds (simple equirectangular projection around
// the bounds' southwest corner). Maps already in meters pass through
// untouched.
func projectMap(m *MapDoc) {
	if m.Projected || m.GPSBounds == nil {
		return
	}
	b := m.GPSBounds
	latRad := (b.MinLat + b.MaxLat) / 2 * math.Pi / 180
	mPerLon := earthRadiusM * math.Cos(latRad) * math.Pi / 180
	mPerLat := earthRadiusM * math.Pi / 180
	project := func(p *PtDoc) {
		p.X = (p.X - b.MinLon) * mPerLon
		p.Y = (p.Y - b.MinLat) * mPerLat
	}
	for i := range m.Roads {
		for j := range m.Roads[i].Center {
			project(&m.Roads[i].Center[j])
		}
	}
	for i := range m.Buildings {
		project(&m.Buildings[i].Gate)
	}
	for i := range m.ParkingLots {
		project(&m.ParkingLots[i].Gate)
	}
	m.Projected = true
}

// checkScenarioValid drops trips whose origin or destination building is
// not in the map, returning how many were dropped. A stale trip is a
// data problem, not a reason to refuse the whole scenario.
func checkScenarioValid(m *MapDoc, s *ScenarioDoc) int {
	buildings := make(map[int32]struct{}, len(m.Buildings))
	for _, b := range m.Buildings {
		buildings[b.ID] = struct{}{}
	}
	kept := s.Trips[:0]
	dropped := 0
	for _, t := range s.Trips {
		if _, ok := buildings[t.Origin]; !ok {
			dropped++
			continue
		}
		if _, ok := buildings[t.Destination]; !ok {
			dropped++
			continue
		}
		kept = append(kept, t)
	}
	s.Trips = kept
	return dropped
}
