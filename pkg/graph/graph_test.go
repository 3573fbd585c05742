package graph

import (
	"testing"

	"github.com/lapiml/stackctl/pkg/errdefs"
)

func TestOrderPlacesDependenciesFirst(t *testing.T) {
	deps := Deps{
		"api":     {"minio", "mlflow"},
		"mlflow":  {"minio"},
		"minio":   nil,
		"console": nil,
	}
	order, err := Order(deps)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 nodes, got %v", order)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	for node, ds := range deps {
		for _, d := range ds {
			if pos[d] >= pos[node] {
				t.Fatalf("%s must come before %s: %v", d, node, order)
			}
		}
	}
}

func TestLevelsGroupIndependentNodes(t *testing.T) {
	deps := Deps{
		"api":    {"minio"},
		"mlflow": {"minio"},
		"minio":  nil,
	}
	levels, err := Levels(deps)
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %v", levels)
	}
	if len(levels[0]) != 1 || levels[0][0] != "minio" {
		t.Fatalf("level 0 = %v", levels[0])
	}
	if len(levels[1]) != 2 || levels[1][0] != "api" || levels[1][1] != "mlflow" {
		t.Fatalf("level 1 should be alphabetical: %v", levels[1])
	}
}

func TestOrderDeterministic(t *testing.T) {
	deps := Deps{"c": nil, "a": nil, "b": nil}
	first, err := Order(deps)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Order(deps)
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("order not stable: %v vs %v", first, again)
			}
		}
	}
}

func TestCycleDetected(t *testing.T) {
	deps := Deps{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := Order(deps)
	if !errdefs.IsKind(err, errdefs.KindDependencyCycle) {
		t.Fatalf("expected DependencyCycle, got %v", err)
	}
}

func TestCycleBehindChain(t *testing.T) {
	deps := Deps{
		"entry": nil,
		"a":     {"entry", "c"},
		"b":     {"a"},
		"c":     {"b"},
	}
	_, err := Order(deps)
	if !errdefs.IsKind(err, errdefs.KindDependencyCycle) {
		t.Fatalf("expected DependencyCycle, got %v", err)
	}
}

func TestEmptyGraph(t *testing.T) {
	order, err := Order(Deps{})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("expected empty order, got %v", order)
	}
}
