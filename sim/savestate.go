package sim

import (
	"fmt"
	"os"
	"path"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
)

// SavestateWriter persists one snapshot; the on-disk layout beyond the
// key-to-path mapping is the writer's business.
type SavestateWriter interface {
	Write(key SavestateKey, data []byte) (location string, err error)
}

// FileSavestateWriter writes snapshots under
// {dir}/{map}/{edits}_{run}/{time}.bin.
type FileSavestateWriter struct {
	Dir string
}

func (w *FileSavestateWriter) Write(key SavestateKey, data []byte) (string, error) {
	dir := path.Join(w.Dir, key.MapName, key.EditsName+"_"+key.RunName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file := path.Join(dir, fmt.Sprintf("%012.1f.bin", float64(key.Time)))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return "", err
	}
	return file, nil
}

// snapshotDoc is the serialized sim state. It is enough to reconstruct
// agent positions and the postmortem context. This package only writes
// snapshots; nothing in it loads one back.
type snapshotDoc struct {
	Time   float64         `bson:"time"`
	Seed   uint64          `bson:"seed"`
	Cars   []agentSnapshot `bson:"cars"`
	Peds   []agentSnapshot `bson:"peds"`
	Counts countsSnapshot  `bson:"counts"`
	Stages []stageSnapshot `bson:"stages"`
}

type agentSnapshot struct {
	ID   int32   `bson:"id"`
	Trip int32   `bson:"trip"`
	Kind int     `bson:"kind"` // traversable kind
	On   int32   `bson:"on"`
	S    float64 `bson:"s"`
	V    float64 `bson:"v"`
}

type countsSnapshot struct {
	Spawned  int `bson:"spawned"`
	Finished int `bson:"finished"`
	Aborted  int `bson:"aborted"`
	Active   int `bson:"active"`
}

type stageSnapshot struct {
	Intersection int32 `bson:"intersection"`
	Stage        int   `bson:"stage"`
}

// doSavestate serializes the live state and hands it to the writer.
// Failures are logged, not fatal: losing a snapshot must not kill the
// run it exists to debug.
func (s *Sim) doSavestate() {
	doc := snapshotDoc{
		Time: float64(s.now),
		Seed: s.cfg.C.RandomSeed,
	}
	counts := s.trips.Counts()
	doc.Counts = countsSnapshot{
		Spawned: counts.Spawned, Finished: counts.Finished,
		Aborted: counts.Aborted, Active: counts.Active,
	}
	for _, id := range s.m.LaneIDs() {
		doc.Cars = append(doc.Cars, s.carSnapshots(entity.LaneTraversable(id))...)
	}
	for _, id := range s.m.TurnIDs() {
		doc.Cars = append(doc.Cars, s.carSnapshots(entity.TurnTraversable(id))...)
	}
	for _, p := range s.peds.All() {
		ref := int32(p.On.Lane)
		if p.On.Kind == entity.OnTurn {
			ref = int32(p.On.Turn)
		}
		doc.Peds = append(doc.Peds, agentSnapshot{
			ID: int32(p.ID), Trip: int32(p.Agent.Trip), Kind: int(p.On.Kind),
			On: ref, S: float64(p.DistAt(s.now)),
		})
	}
	for _, iid := range s.controllers.IDs() {
		if stage := s.controllers.Get(iid).StageIndex(); stage >= 0 {
			doc.Stages = append(doc.Stages, stageSnapshot{Intersection: int32(iid), Stage: stage})
		}
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		log.Warnf("savestate marshal failed at t=%v: %v", s.now, err)
		return
	}
	key := SavestateKey{
		MapName: s.mapName, EditsName: s.editsName, RunName: s.runName, Time: s.now,
	}
	loc, err := s.saver.Write(key, raw)
	if err != nil {
		log.Warnf("savestate write failed at t=%v: %v", s.now, err)
		return
	}
	s.lastSavestate = loc
	log.Debugf("savestate at t=%v -> %v", s.now, loc)
}

func (s *Sim) carSnapshots(on entity.TraversableID) []agentSnapshot {
	var out []agentSnapshot
	for _, dc := range s.cars.GetDrawCars(on) {
		ref := int32(on.Lane)
		if on.Kind == entity.OnTurn {
			ref = int32(on.Turn)
		}
		out = append(out, agentSnapshot{
			ID: int32(dc.ID), Trip: int32(dc.Trip), Kind: int(on.Kind),
			On: ref, S: float64(dc.S), V: float64(dc.V),
		})
	}
	return out
}

// LastSavestate reports where the most recent snapshot landed, empty if
// none has been written yet.
func (s *Sim) LastSavestate() string {
	return s.lastSavestate
}
