// Package input loads the map and scenario bundles the simulator starts
// from, either from MongoDB or from local files, with a local BSON cache
// so repeated runs against the same database don't hit the network.
package input

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tsinghua-fib-lab/moss-street-sim/utils/config"
)

var log = logrus.WithField("module", "input")

// Input bundles everything the simulator needs at startup.
type Input struct {
	Map      *MapDoc
	Scenario *ScenarioDoc
}

// Init loads all configured inputs. Files win over the database; the
// database result is cached under cacheDir when caching is enabled.
func Init(c config.Config, cacheDir string) *Input {
	useCache := preCheckCache(cacheDir)
	if !useCache {
		cacheDir = ""
	}

	var client *mongo.Client
	if c.Input.URI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var err error
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(c.Input.URI))
		if err != nil {
			log.Panicf("mongo connect err: %v", err)
		}
		defer client.Disconnect(context.Background())
	}

	res := &Input{}

	res.Map = &MapDoc{}
	mustLoad(client, c.Input.Map, cacheDir, res.Map)
	if c.Input.Scenario != nil {
		res.Scenario = &ScenarioDoc{}
		mustLoad(client, *c.Input.Scenario, cacheDir, res.Scenario)
	} else {
		res.Scenario = &ScenarioDoc{}
	}

	log.Infof("map %q: %d roads, %d intersections, %d buildings",
		res.Map.Name, len(res.Map.Roads), len(res.Map.Intersections), len(res.Map.Buildings))
	log.Infof("scenario %q: %d trips", res.Scenario.Name, len(res.Scenario.Trips))

	projectMap(res.Map)
	if bad := checkScenarioValid(res.Map, res.Scenario); bad > 0 {
		log.Warnf("dropped %d trips referencing unknown buildings", bad)
	}
	return res
}

// mustLoad fills out from, in priority order: a local file, the cache,
// MongoDB (re-filling the cache on the way through). Panics when no
// source can provide the document; startup without input is meaningless.
func mustLoad(client *mongo.Client, p config.InputPath, cacheDir string, out any) {
	if p.File != "" {
		if err := unmarshalFromFile(p.File, out); err != nil {
			log.Panicf("failed to load %v from file: %v", p.File, err)
		}
		return
	}
	cachePath := ""
	if cacheDir != "" {
		cachePath = path.Join(cacheDir, p.GetCachePath())
		if raw, err := os.ReadFile(cachePath); err == nil {
			if err := bson.Unmarshal(raw, out); err == nil {
				log.Debugf("loaded %v.%v from cache", p.GetDb(), p.GetColl())
				return
			}
			log.Warnf("cache %v is corrupt, reloading from database", cachePath)
		}
	}
	if p.OnlyCache {
		log.Panicf("only_cache set but no usable cache for %v.%v", p.GetDb(), p.GetColl())
	}
	if client == nil {
		log.Panicf("no file, no cache and no database URI for %v.%v", p.GetDb(), p.GetColl())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	raw, err := client.Database(p.GetDb()).Collection(p.GetColl()).
		FindOne(ctx, bson.D{}).Raw()
	if err != nil {
		log.Panicf("failed to load %v.%v from database: %v", p.GetDb(), p.GetColl(), err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		log.Panicf("failed to decode %v.%v: %v", p.GetDb(), p.GetColl(), err)
	}
	if cachePath != "" {
		if err := os.WriteFile(cachePath, raw, 0o644); err != nil {
			log.Warnf("failed to write cache %v: %v", cachePath, err)
		}
	}
}

// unmarshalFromFile decodes by extension: .json as JSON, anything else
// as BSON.
func unmarshalFromFile(file string, out any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if strings.HasSuffix(file, ".json") {
		return json.Unmarshal(raw, out)
	}
	return bson.Unmarshal(raw, out)
}

// preCheckCache reports whether cacheDir is usable, creating it if
// needed.
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		return false
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		log.Warnf("cache dir %v unusable, caching disabled: %v", cacheDir, err)
		return false
	}
	return true
}
