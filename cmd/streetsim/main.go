package main

import (
	"encoding/base64"
	"flag"
	"os"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/tsinghua-fib-lab/moss-street-sim/clock"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity"
	"github.com/tsinghua-fib-lab/moss-street-sim/entity/trafficlight"
	"github.com/tsinghua-fib-lab/moss-street-sim/geom"
	"github.com/tsinghua-fib-lab/moss-street-sim/mapgeom"
	"github.com/tsinghua-fib-lab/moss-street-sim/sim"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
	"github.com/tsinghua-fib-lab/moss-street-sim/utils/input"
)

var (
	// run naming, used as the savestate key prefix
	job = flag.String("job", "job0", "the name of the simulation run")
	// config file path
	configPath = flag.String("config", "", "config file path")
	// config file, base64 encoded (container-friendly alternative)
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// input cache dir; empty disables caching
	cacheDir = flag.String("cache", "data/", "input cache dir path (empty means disable cache)")

	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "log level (one of: trace debug info warn error critical off)")

	heartbeatInterval = flag.Int("log.heartbeat_interval", 100, "steps between heartbeat log lines")

	log = logrus.WithField("module", "streetsim")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	var c config.Config
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		log.Panicf("config file load err: %v", err)
	}
	log.Infof("%+v", c)

	initRes := input.Init(c, *cacheDir)
	rc := config.NewRuntimeConfig(c)

	m, err := mapgeom.BuildMap(initRes.Map)
	if err != nil {
		log.Panicf("map build err: %v", err)
	}
	log.Infof("Road: %v", len(m.RoadIDs()))
	log.Infof("Lane: %v", len(m.LaneIDs()))
	log.Infof("Intersection: %v", len(m.IntersectionIDs()))
	log.Infof("Turn: %v", len(m.TurnIDs()))

	s := sim.New(m, rc, sim.Options{
		MapName:   initRes.Map.Name,
		EditsName: "none",
		RunName:   *job,
		Programs:  programsFromDoc(initRes.Map),
	})
	s.LoadScenario(initRes.Scenario)

	clk := clock.New(c.Control.Step)
	for clk.InternalStep < clk.END_STEP {
		clk.InternalStep++
		clk.T = float64(clk.InternalStep) * clk.DT
		if clk.InternalStep%int32(*heartbeatInterval) == 0 {
			hour, minute, second := clk.GetHourMinuteSecond()
			log.Infof("STEP: %d(%d:%d:%.2f)", clk.InternalStep, hour, minute, second)
		}
		s.Step(geom.Duration(clk.DT))
	}
	counts := s.TripCounts()
	log.Infof("engine complete: %d trips spawned, %d finished, %d aborted",
		counts.Spawned, counts.Finished, counts.Aborted)
}

// programsFromDoc converts the map bundle's fixed signal programs into
// controller stages.
func programsFromDoc(doc *input.MapDoc) map[entity.IntersectionID][]trafficlight.Stage {
	out := make(map[entity.IntersectionID][]trafficlight.Stage)
	for _, isec := range doc.Intersections {
		if len(isec.Stages) == 0 {
			continue
		}
		out[entity.IntersectionID(isec.ID)] = lo.Map(isec.Stages, func(st input.StageDoc, _ int) trafficlight.Stage {
			conv := func(ms []input.MovementDoc) []entity.Movement {
				return lo.Map(ms, func(mv input.MovementDoc, _ int) entity.Movement {
					return entity.Movement{From: entity.RoadID(mv.FromRoad), To: entity.RoadID(mv.ToRoad)}
				})
			}
			return trafficlight.Stage{
				Protected: conv(st.Protected),
				Yield:     conv(st.Yield),
				Duration:  geom.Duration(st.Duration),
			}
		})
	}
	return out
}
