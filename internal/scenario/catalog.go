package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/platform/logger"
)

var ErrScenarioNotFound = errors.New("scenario not found")

// Catalog holds the predefined scenarios in file order. It is read-only after
// loading.
type Catalog struct {
	scenarios []*models.Scenario
	byID      map[string]*models.Scenario
}

// NewCatalog builds a catalog from already normalized scenarios. Later
// duplicates of an id are ignored.
func NewCatalog(scenarios []*models.Scenario) *Catalog {
	c := &Catalog{byID: make(map[string]*models.Scenario, len(scenarios))}
	for _, s := range scenarios {
		if s == nil {
			continue
		}
		if _, dup := c.byID[s.ID]; dup {
			continue
		}
		c.byID[s.ID] = s
		c.scenarios = append(c.scenarios, s)
	}
	return c
}

// LoadCatalog reads a JSON or YAML list of scenarios from path. A missing,
// empty, or malformed file yields an empty catalog; entries that fail
// normalization are skipped. Problems are logged, never returned.
func LoadCatalog(path string, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	if strings.TrimSpace(path) == "" {
		return NewCatalog(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("scenario file not readable, starting with an empty catalog", "path", path, "error", err)
		return NewCatalog(nil)
	}

	raw, err := decodeList(path, data)
	if err != nil {
		log.Warn("scenario file malformed, starting with an empty catalog", "path", path, "error", err)
		return NewCatalog(nil)
	}

	var loaded []*models.Scenario
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			log.Warn("skipping scenario entry that is not an object", "index", i)
			continue
		}
		sc, warnings, err := Normalize(obj)
		if err != nil {
			log.Warn("skipping scenario entry", "index", i, "error", err)
			continue
		}
		for _, w := range warnings {
			log.Debug("scenario normalized with warning", "scenario_id", sc.ID, "warning", w)
		}
		loaded = append(loaded, sc)
	}

	log.Info("scenario catalog loaded", "path", path, "count", len(loaded))
	return NewCatalog(loaded)
}

func decodeList(path string, data []byte) ([]any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var list []any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
	}
	return list, nil
}

// List returns summaries in file order. Diagnoses are never included.
func (c *Catalog) List() []models.ScenarioSummary {
	out := make([]models.ScenarioSummary, 0, len(c.scenarios))
	for _, s := range c.scenarios {
		out = append(out, s.Summary())
	}
	return out
}

func (c *Catalog) Len() int { return len(c.scenarios) }

// Get returns a private deep copy of the scenario with the given id.
func (c *Catalog) Get(id string) (*models.Scenario, error) {
	s, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, id)
	}
	return s.Clone(), nil
}

// Random picks a scenario uniformly, returning a deep copy.
func (c *Catalog) Random(rng *rand.Rand) (*models.Scenario, error) {
	if len(c.scenarios) == 0 {
		return nil, ErrScenarioNotFound
	}
	var i int
	if rng != nil {
		i = rng.Intn(len(c.scenarios))
	} else {
		i = rand.Intn(len(c.scenarios))
	}
	return c.scenarios[i].Clone(), nil
}
