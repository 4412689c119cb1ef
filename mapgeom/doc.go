// Package mapgeom is the intersection & block geometry engine: given a
// Map's raw road centerlines it computes non-overlapping intersection
// polygons with trimmed-back road centerlines, and traces block/perimeter
// polygons around groups of roads.
//
// This package must never import sim, drivesim, walksim or trip: the
// geometry engine runs only during map build/edit and has to be usable
// standalone by map-editing tools.
package mapgeom

import "errors"

// ErrTraceBlockedAtBoundary is returned by SingleBlock when the tracer
// walks off the edge of the map before closing the loop.
var ErrTraceBlockedAtBoundary = errors.New("mapgeom: block trace hit a map boundary")

// ErrMergeImpossible is returned by TryMerge when the two perimeters don't
// share a single consecutive run of roads.
var ErrMergeImpossible = errors.New("mapgeom: perimeters do not share consecutive roads")

// ErrInfiniteLoop guards SingleBlock's iteration count against cycles
// that never return to the start side, like beginning on the inner side
// of a self-loop road.
var ErrInfiniteLoop = errors.New("mapgeom: block trace exceeded iteration guard")
