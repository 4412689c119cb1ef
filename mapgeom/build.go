package mapgeom

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
)

var log = logrus.WithField("module", "mapgeom")

const (
	defaultLaneWidth = 3.5
	defaultMaxSpeed  = 13.9 // 50 km/h
)

// BuildMap turns a loaded map bundle into a ready-to-simulate
// entity.Map: roads and intersections are added, the intersection
// polygon builder runs over every intersection (recording trims),
// lanes are derived from the trimmed centerlines, and turns are
// generated between every connected inbound/outbound lane pair.
//
// Geometry failures are recovered per the error policy: the failing
// intersection keeps a degenerate placeholder polygon and its roads
// keep their raw centerlines, logged at Warn.
func BuildMap(doc *input.MapDoc) (*entity.Map, error) {
	m := entity.NewMap()

	for _, rd := range doc.Roads {
		pts := lo.Map(rd.Center, func(p input.PtDoc, _ int) geom.Pt2D {
			return geom.Pt2D{X: p.X, Y: p.Y}
		})
		center, err := geom.NewPolyLine(pts)
		if err != nil {
			return nil, fmt.Errorf("mapgeom: road %d centerline: %w", rd.ID, err)
		}
		maxSpeed := rd.MaxSpeed
		if maxSpeed <= 0 {
			maxSpeed = defaultMaxSpeed
		}
		m.AddRoad(&entity.Road{
			ID:        entity.RoadID(rd.ID),
			I1:        entity.IntersectionID(rd.I1),
			I2:        entity.IntersectionID(rd.I2),
			Center:    center,
			HalfWidth: geom.Distance(rd.HalfWidth),
			MaxSpeed:  geom.Speed(maxSpeed),
			Tags:      entity.Tags(rd.Tags),
		})
	}
	for _, id := range doc.Intersections {
		m.AddIntersection(&entity.Intersection{
			ID:    entity.IntersectionID(id.ID),
			Class: parseClass(id.Class),
		})
	}
	attachRoads(m)

	// Geometry engine pass: polygons and trims.
	for _, iid := range m.IntersectionIDs() {
		res, err := IntersectionPolygon(m, iid, nil)
		if err != nil {
			log.Warnf("intersection %d polygon failed, using placeholder: %v", iid, err)
			placeholderPolygon(m, iid)
			continue
		}
		isec := m.Intersection(iid)
		isec.Polygon = res.Polygon
		for rid, cut := range res.TrimBack {
			r := m.Road(rid)
			if r.I2 == iid {
				r.TrimEnd = cut
			} else {
				r.TrimStart = cut
			}
		}
	}

	buildLanes(m, doc)
	buildTurns(m)

	for _, b := range doc.Buildings {
		m.AddBuilding(&entity.Building{
			ID:        entity.BuildingID(b.ID),
			Gate:      geom.Pt2D{X: b.Gate.X, Y: b.Gate.Y},
			DriveGate: entity.LaneID(b.DriveGate),
			WalkGate:  entity.LaneID(b.WalkGate),
		})
	}
	for _, p := range doc.ParkingLots {
		m.AddParkingLot(&entity.ParkingLot{
			ID:        entity.ParkingLotID(p.ID),
			Gate:      geom.Pt2D{X: p.Gate.X, Y: p.Gate.Y},
			DriveGate: entity.LaneID(p.DriveGate),
		})
	}
	for _, t := range doc.TransitStops {
		m.AddTransitStop(&entity.TransitStop{
			ID:   entity.TransitStopID(t.ID),
			Lane: entity.LaneID(t.Lane),
			S:    geom.Distance(t.S),
		})
	}
	return m, nil
}

func parseClass(s string) entity.IntersectionClass {
	switch s {
	case "border":
		return entity.Border
	case "stop_sign":
		return entity.StopSign
	case "traffic_signal":
		return entity.TrafficSignal
	default:
		return entity.Uncontrolled
	}
}

// attachRoads fills each intersection's incident road list, sorted
// counter-clockwise (ascending degrees) by the angle the road leaves the
// intersection at.
func attachRoads(m *entity.Map) {
	for _, rid := range m.RoadIDs() {
		r := m.Road(rid)
		for _, iid := range []entity.IntersectionID{r.I1, r.I2} {
			isec := m.Intersection(iid)
			if !isec.HasRoad(rid) {
				isec.Roads = append(isec.Roads, rid)
			}
			if r.I1 == r.I2 {
				break
			}
		}
	}
	for _, iid := range m.IntersectionIDs() {
		isec := m.Intersection(iid)
		sort.SliceStable(isec.Roads, func(i, j int) bool {
			return leavingAngle(m, iid, isec.Roads[i]) < leavingAngle(m, iid, isec.Roads[j])
		})
	}
}

func leavingAngle(m *entity.Map, i entity.IntersectionID, rid entity.RoadID) int64 {
	// Oriented towards the intersection, then flipped: the direction a
	// walker leaves the intersection along this road.
	pl := m.Road(rid).OrientedTowards(i)
	return int64(pl.LastAngle().OppositeAngle().NormalizedDegrees())
}

// placeholderPolygon gives a failed intersection a small box around its
// centerline endpoints so downstream code can still trace past it.
func placeholderPolygon(m *entity.Map, iid entity.IntersectionID) {
	isec := m.Intersection(iid)
	var pts []geom.Pt2D
	for _, rid := range isec.Roads {
		pts = append(pts, m.Road(rid).OrientedTowards(iid).Last())
	}
	if len(pts) == 0 {
		return
	}
	c := geom.Centroid(pts)
	d := 2.0
	ring, err := geom.NewRing([]geom.Pt2D{
		{X: c.X - d, Y: c.Y - d}, {X: c.X + d, Y: c.Y - d},
		{X: c.X + d, Y: c.Y + d}, {X: c.X - d, Y: c.Y + d},
	})
	if err == nil {
		isec.Polygon = ring.IntoPolygon()
	}
}

// buildLanes derives per-direction lanes from each road's trimmed
// centerline. Lanes are stored left to right across the roadbed:
// backward lanes first (outermost left is index 0), then forward lanes,
// matching the lane ordering convention the block builder's
// OutermostLane relies on.
func buildLanes(m *entity.Map, doc *input.MapDoc) {
	laneCounts := make(map[entity.RoadID][2]int, len(doc.Roads))
	for _, rd := range doc.Roads {
		fwd, back := rd.FwdLanes, rd.BackLanes
		if fwd <= 0 {
			fwd = 1
		}
		if back < 0 {
			back = 0
		}
		if rd.FwdLanes == 0 && rd.BackLanes == 0 {
			back = 1
		}
		laneCounts[entity.RoadID(rd.ID)] = [2]int{fwd, back}
	}

	var nextLane entity.LaneID
	for _, rid := range m.RoadIDs() {
		r := m.Road(rid)
		counts := laneCounts[rid]
		fwd, back := counts[0], counts[1]
		total := fwd + back
		width := float64(2*r.HalfWidth) / float64(total)
		if width <= 0 {
			width = defaultLaneWidth
		}

		trimmed, err := r.TrimmedCenter()
		if err != nil {
			log.Warnf("road %d trimmed centerline failed, using raw: %v", rid, err)
			trimmed = r.Center
		}
		base := &entity.Road{
			ID: r.ID, I1: r.I1, I2: r.I2, Center: trimmed,
			HalfWidth: r.HalfWidth, MaxSpeed: r.MaxSpeed, Tags: r.Tags,
		}

		// index 0 is the leftmost strip of the roadbed
		for idx := 0; idx < total; idx++ {
			off := geom.Distance((float64(idx)+0.5)*width) - r.HalfWidth
			dir := entity.Back
			if idx >= back {
				dir = entity.Fwd
			}
			lane, err := entity.NewLane(nextLane, base, dir, idx, off, geom.Distance(width))
			if err != nil {
				log.Warnf("road %d lane %d offset failed, using centerline: %v", rid, idx, err)
				center := trimmed
				if dir == entity.Back {
					center = center.Reversed()
				}
				start, end := r.I1, r.I2
				if dir == entity.Back {
					start, end = r.I2, r.I1
				}
				lane = &entity.Lane{
					ID: nextLane, Parent: rid, Dir: dir, Index: idx,
					Center: center, Width: geom.Distance(width), MaxSpeed: r.MaxSpeed,
					StartIntersection: start, EndIntersection: end,
				}
			}
			m.AddLane(lane)
			r.LaneIDs = append(r.LaneIDs, lane.ID)
			nextLane++
		}
	}
}

// buildTurns connects every inbound lane to every outbound lane of a
// different road at each intersection. Turn centerlines are straight
// segments between the trimmed lane endpoints; tight hooks that
// collapse to a point get a two-point stub via ExtendToLength.
func buildTurns(m *entity.Map) {
	var nextTurn entity.TurnID
	for _, iid := range m.IntersectionIDs() {
		isec := m.Intersection(iid)
		var inbound, outbound []*entity.Lane
		for _, rid := range isec.Roads {
			r := m.Road(rid)
			for _, lid := range r.LaneIDs {
				l := m.Lane(lid)
				if l.EndIntersection == iid {
					inbound = append(inbound, l)
				}
				if l.StartIntersection == iid {
					outbound = append(outbound, l)
				}
			}
		}
		for _, in := range inbound {
			for _, out := range outbound {
				if in.Parent == out.Parent {
					continue
				}
				from := in.Center.Last()
				to := out.Center.First()
				center, err := geom.NewPolyLine([]geom.Pt2D{from, to})
				if err != nil {
					// Endpoints coincide; manufacture a minimal stub so
					// the turn still has a direction.
					center = in.Center.ExtendToLength(in.Center.Length() + geom.EPSILON*2)
					var sliceErr error
					center, sliceErr = center.ExactSlice(in.Center.Length(), center.Length())
					if sliceErr != nil {
						log.Warnf("turn %v->%v degenerate, skipped", in.ID, out.ID)
						continue
					}
				}
				m.AddTurn(&entity.Turn{
					ID:           nextTurn,
					Intersection: iid,
					From:         in.ID,
					To:           out.ID,
					Center:       center,
				})
				nextTurn++
			}
		}
	}
}
