package scenario

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCatalog_JSON(t *testing.T) {
	path := writeFile(t, "scenarios.json", `[
		{"id": "a", "name": "Appendicitis", "difficulty": "easy", "true_diagnosis_internal": "Acute appendicitis"},
		{"name": "no id, skipped"},
		"not an object",
		{"id": "b", "name": "Pneumonia"},
		{"id": "a", "name": "duplicate"}
	]`)

	c := LoadCatalog(path, nil)
	if c.Len() != 2 {
		t.Fatalf("expected 2 scenarios, got %d", c.Len())
	}

	list := c.List()
	if list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("expected file order, got %+v", list)
	}
	if list[0].Name != "Appendicitis" {
		t.Errorf("expected first entry to win on duplicate ids, got %q", list[0].Name)
	}

	got, err := c.Get("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.Name = "mutated"
	again, _ := c.Get("a")
	if again.Name != "Appendicitis" {
		t.Error("expected Get to return an independent copy")
	}
}

func TestLoadCatalog_YAML(t *testing.T) {
	path := writeFile(t, "scenarios.yaml", `
- id: yaml_case
  name: Migraine
  difficulty: hard
  hidden_triggers:
    - id: t1
      condition_type: message_count
      condition_value: 3
      patient_reveal_info: The light hurts my eyes.
`)
	c := LoadCatalog(path, nil)
	sc, err := c.Get("yaml_case")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sc.HiddenTriggers) != 1 || sc.HiddenTriggers[0].Threshold != 3 {
		t.Errorf("expected integer YAML threshold to be accepted, got %+v", sc.HiddenTriggers)
	}
}

func TestLoadCatalog_TolerantOfBadFiles(t *testing.T) {
	paths := []string{
		"",
		filepath.Join(t.TempDir(), "missing.json"),
		writeFile(t, "empty.json", "   "),
		writeFile(t, "broken.json", `[{"id": "a"`),
		writeFile(t, "object.json", `{"id": "a"}`),
	}
	for _, p := range paths {
		if c := LoadCatalog(p, nil); c.Len() != 0 {
			t.Errorf("%q: expected empty catalog, got %d", p, c.Len())
		}
	}
}

func TestCatalog_GetAndRandom(t *testing.T) {
	c := NewCatalog(nil)
	if _, err := c.Get("nope"); !errors.Is(err, ErrScenarioNotFound) {
		t.Errorf("expected ErrScenarioNotFound, got %v", err)
	}
	if _, err := c.Random(rand.New(rand.NewSource(1))); !errors.Is(err, ErrScenarioNotFound) {
		t.Errorf("expected ErrScenarioNotFound from empty catalog, got %v", err)
	}

	path := writeFile(t, "s.json", `[{"id": "only"}]`)
	c = LoadCatalog(path, nil)
	sc, err := c.Random(rand.New(rand.NewSource(1)))
	if err != nil || sc.ID != "only" {
		t.Errorf("expected the single scenario, got %v, %v", sc, err)
	}
}
