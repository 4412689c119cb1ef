package entity

import (
	"fmt"

	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
)

// Building, ParkingLot and TransitStop are trip-leg destinations; map
// import and rendering own their full shape, the simulator only needs
// their id, gate point and the lane they're accessed from.
type Building struct {
	ID        BuildingID
	Gate      geom.Pt2D
	DriveGate LaneID
	WalkGate  LaneID
}

type ParkingLot struct {
	ID        ParkingLotID
	Gate      geom.Pt2D
	DriveGate LaneID
}

type TransitStop struct {
	ID   TransitStopID
	Lane LaneID
	S    geom.Distance
}

// Map is the immutable road network a Sim run operates over; edits
// build a new Map and swap it in between runs. It is the sole owner of
// roads, intersections, lanes and turns; every other component refers
// to them by ID only.
type Map struct {
	roads         map[RoadID]*Road
	intersections map[IntersectionID]*Intersection
	lanes         map[LaneID]*Lane
	turns         map[TurnID]*Turn
	buildings     map[BuildingID]*Building
	parkingLots   map[ParkingLotID]*ParkingLot
	transitStops  map[TransitStopID]*TransitStop

	roadIDs         []RoadID
	intersectionIDs []IntersectionID
	laneIDs         []LaneID
	turnIDs         []TurnID

	turnsFromLane map[LaneID][]TurnID
	turnsAt       map[IntersectionID][]TurnID
}

// NewMap builds an empty Map; callers populate it via AddRoad/
// AddIntersection before running the geometry engine over it.
func NewMap() *Map {
	return &Map{
		roads:         make(map[RoadID]*Road),
		intersections: make(map[IntersectionID]*Intersection),
		lanes:         make(map[LaneID]*Lane),
		turns:         make(map[TurnID]*Turn),
		buildings:     make(map[BuildingID]*Building),
		parkingLots:   make(map[ParkingLotID]*ParkingLot),
		transitStops:  make(map[TransitStopID]*TransitStop),
		turnsFromLane: make(map[LaneID][]TurnID),
		turnsAt:       make(map[IntersectionID][]TurnID),
	}
}

func (m *Map) AddRoad(r *Road) {
	if _, exists := m.roads[r.ID]; !exists {
		m.roadIDs = append(m.roadIDs, r.ID)
	}
	m.roads[r.ID] = r
}

func (m *Map) AddIntersection(i *Intersection) {
	if _, exists := m.intersections[i.ID]; !exists {
		m.intersectionIDs = append(m.intersectionIDs, i.ID)
	}
	m.intersections[i.ID] = i
}

func (m *Map) AddLane(l *Lane) {
	if _, exists := m.lanes[l.ID]; !exists {
		m.laneIDs = append(m.laneIDs, l.ID)
	}
	m.lanes[l.ID] = l
}

func (m *Map) AddTurn(t *Turn) {
	if _, exists := m.turns[t.ID]; !exists {
		m.turnIDs = append(m.turnIDs, t.ID)
		m.turnsFromLane[t.From] = append(m.turnsFromLane[t.From], t.ID)
		m.turnsAt[t.Intersection] = append(m.turnsAt[t.Intersection], t.ID)
	}
	m.turns[t.ID] = t
}

func (m *Map) AddBuilding(b *Building)       { m.buildings[b.ID] = b }
func (m *Map) AddParkingLot(p *ParkingLot)   { m.parkingLots[p.ID] = p }
func (m *Map) AddTransitStop(t *TransitStop) { m.transitStops[t.ID] = t }

// Road returns the road with id, panicking if absent: a dangling RoadID
// is an invariant violation, not an expected operational failure.
func (m *Map) Road(id RoadID) *Road {
	r, ok := m.roads[id]
	if !ok {
		panic(fmt.Sprintf("entity: no road %d in map", id))
	}
	return r
}

func (m *Map) RoadOrError(id RoadID) (*Road, error) {
	r, ok := m.roads[id]
	if !ok {
		return nil, fmt.Errorf("entity: no road %d in map", id)
	}
	return r, nil
}

func (m *Map) Intersection(id IntersectionID) *Intersection {
	i, ok := m.intersections[id]
	if !ok {
		panic(fmt.Sprintf("entity: no intersection %d in map", id))
	}
	return i
}

func (m *Map) IntersectionOrError(id IntersectionID) (*Intersection, error) {
	i, ok := m.intersections[id]
	if !ok {
		return nil, fmt.Errorf("entity: no intersection %d in map", id)
	}
	return i, nil
}

func (m *Map) Lane(id LaneID) *Lane {
	l, ok := m.lanes[id]
	if !ok {
		panic(fmt.Sprintf("entity: no lane %d in map", id))
	}
	return l
}

func (m *Map) LaneOrError(id LaneID) (*Lane, error) {
	l, ok := m.lanes[id]
	if !ok {
		return nil, fmt.Errorf("entity: no lane %d in map", id)
	}
	return l, nil
}

func (m *Map) Turn(id TurnID) *Turn {
	t, ok := m.turns[id]
	if !ok {
		panic(fmt.Sprintf("entity: no turn %d in map", id))
	}
	return t
}

func (m *Map) TurnOrError(id TurnID) (*Turn, error) {
	t, ok := m.turns[id]
	if !ok {
		return nil, fmt.Errorf("entity: no turn %d in map", id)
	}
	return t, nil
}

// TurnsFromLane lists the turns leaving the end of a lane, in insertion
// order.
func (m *Map) TurnsFromLane(id LaneID) []TurnID {
	return append([]TurnID{}, m.turnsFromLane[id]...)
}

// TurnsAt lists the turns crossing intersection i.
func (m *Map) TurnsAt(i IntersectionID) []TurnID {
	return append([]TurnID{}, m.turnsAt[i]...)
}

func (m *Map) Building(id BuildingID) *Building          { return m.buildings[id] }
func (m *Map) ParkingLot(id ParkingLotID) *ParkingLot    { return m.parkingLots[id] }
func (m *Map) TransitStop(id TransitStopID) *TransitStop { return m.transitStops[id] }

// RoadIDs, IntersectionIDs and LaneIDs return the stable insertion-order id
// lists, used wherever iteration order must be deterministic (geometry
// engine passes, scheduler warm-up, savestate dumps).
func (m *Map) RoadIDs() []RoadID { return append([]RoadID{}, m.roadIDs...) }
func (m *Map) TurnIDs() []TurnID { return append([]TurnID{}, m.turnIDs...) }
func (m *Map) IntersectionIDs() []IntersectionID {
	return append([]IntersectionID{}, m.intersectionIDs...)
}
func (m *Map) LaneIDs() []LaneID { return append([]LaneID{}, m.laneIDs...) }

// RoadSidesAt returns the road-sides incident to intersection i in the
// cyclic order the block tracer advances through: roads in the
// intersection's angle-sorted order, each contributing both sides, with
// the pair ordered by the road's orientation. Advancing +1 from the
// side a trace arrived on yields the next side around the block (or the
// same road's other side, which only legitimately happens at a
// dead-end).
func (m *Map) RoadSidesAt(i IntersectionID) []RoadSideID {
	isec := m.Intersection(i)
	out := make([]RoadSideID, 0, 2*len(isec.Roads))
	for _, rid := range isec.Roads {
		r := m.Road(rid)
		if r.I1 == i {
			out = append(out, RoadSideID{Road: rid, Side: Right}, RoadSideID{Road: rid, Side: Left})
		} else {
			out = append(out, RoadSideID{Road: rid, Side: Left}, RoadSideID{Road: rid, Side: Right})
		}
	}
	return out
}

// TraversableLength returns the centerline length of a lane or turn.
func (m *Map) TraversableLength(t TraversableID) geom.Distance {
	if t.Kind == OnLane {
		return m.Lane(t.Lane).Length()
	}
	return m.Turn(t.Turn).Length()
}

// TraversableCenter returns the directed centerline of a lane or turn.
func (m *Map) TraversableCenter(t TraversableID) geom.PolyLine {
	if t.Kind == OnLane {
		return m.Lane(t.Lane).Center
	}
	return m.Turn(t.Turn).Center
}
