package entity

import "github.com/tsinghua-fib-lab/moss-street-sim/geom"

// TurnID identifies a Turn inside a Map.
type TurnID int32

// Turn is a path through an intersection connecting the end of one lane
// to the start of another. Its centerline is computed by the geometry
// engine from the trimmed lane endpoints.
type Turn struct {
	ID           TurnID
	Intersection IntersectionID
	From, To     LaneID
	Center       geom.PolyLine
}

// Length returns the turn's centerline length.
func (t *Turn) Length() geom.Distance {
	return t.Center.Length()
}

// Movement groups turns with the same from/to road pair; signal stages
// protect or yield movements, not individual turns.
type Movement struct {
	From, To RoadID
}

// TraversableKind tags TraversableID's sum type: an agent is always
// either on a lane or on a turn across an intersection.
type TraversableKind int

const (
	OnLane TraversableKind = iota
	OnTurn
)

// TraversableID names either a Lane or a Turn. Only the field matching
// Kind is meaningful.
type TraversableID struct {
	Kind TraversableKind
	Lane LaneID
	Turn TurnID
}

func LaneTraversable(id LaneID) TraversableID {
	return TraversableID{Kind: OnLane, Lane: id}
}

func TurnTraversable(id TurnID) TraversableID {
	return TraversableID{Kind: OnTurn, Turn: id}
}

// ConflictsWith reports whether two turns at the same intersection can't
// be accepted concurrently: they are the same turn, they end on the same
// lane, or their centerlines cross. Distinct turns leaving the same lane
// never conflict.
func (t *Turn) ConflictsWith(o *Turn) bool {
	if t.ID == o.ID {
		return true
	}
	if t.To == o.To {
		return true
	}
	if t.From == o.From {
		return false
	}
	_, _, hit := t.Center.Intersection(o.Center)
	return hit
}
