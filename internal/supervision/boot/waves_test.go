package boot

import (
	"errors"
	"testing"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

func unitsOf(specs ...domain.UnitSpec) []*domain.Unit {
	units := make([]*domain.Unit, 0, len(specs))
	for _, s := range specs {
		units = append(units, &domain.Unit{
			Name:      s.Name,
			Tier:      s.Tier,
			DependsOn: s.DependsOn,
		})
	}
	return units
}

// ============================================================
// Wave ordering
// ============================================================

func TestWaves_DependencyOrder(t *testing.T) {
	units := unitsOf(
		domain.UnitSpec{Name: "api", Tier: 1, DependsOn: []string{"db", "cache"}},
		domain.UnitSpec{Name: "db", Tier: 0},
		domain.UnitSpec{Name: "cache", Tier: 1, DependsOn: []string{"db"}},
		domain.UnitSpec{Name: "reporting", Tier: 3, DependsOn: []string{"api"}},
	)

	waves, err := Waves(units)
	if err != nil {
		t.Fatalf("Waves() error: %v", err)
	}
	want := [][]string{{"db"}, {"cache"}, {"api"}, {"reporting"}}
	if len(waves) != len(want) {
		t.Fatalf("expected %d waves, got %d: %v", len(want), len(waves), waves)
	}
	for i := range want {
		if len(waves[i]) != len(want[i]) {
			t.Fatalf("wave %d: expected %v, got %v", i, want[i], waves[i])
		}
		for j := range want[i] {
			if waves[i][j] != want[i][j] {
				t.Errorf("wave %d: expected %v, got %v", i, want[i], waves[i])
			}
		}
	}
}

func TestWaves_IndependentUnitsShareWave(t *testing.T) {
	units := unitsOf(
		domain.UnitSpec{Name: "b", Tier: 1},
		domain.UnitSpec{Name: "a", Tier: 0},
		domain.UnitSpec{Name: "c", Tier: 0},
	)

	waves, err := Waves(units)
	if err != nil {
		t.Fatalf("Waves() error: %v", err)
	}
	if len(waves) != 1 {
		t.Fatalf("expected a single wave, got %v", waves)
	}
	// Tier then name ordering inside the wave.
	if waves[0][0] != "a" || waves[0][1] != "c" || waves[0][2] != "b" {
		t.Errorf("expected [a c b], got %v", waves[0])
	}
}

func TestWaves_CycleDetected(t *testing.T) {
	units := unitsOf(
		domain.UnitSpec{Name: "a", DependsOn: []string{"b"}},
		domain.UnitSpec{Name: "b", DependsOn: []string{"a"}},
	)

	_, err := Waves(units)
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}
}

func TestWaves_UnknownDependency(t *testing.T) {
	units := unitsOf(
		domain.UnitSpec{Name: "a", DependsOn: []string{"ghost"}},
	)

	if _, err := Waves(units); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

// ============================================================
// Backoff
// ============================================================

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 10 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}
	for _, c := range cases {
		if got := b.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
