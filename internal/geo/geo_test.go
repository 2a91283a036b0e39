package geo

import (
	"math"
	"testing"

	"github.com/example/plasma-match/internal/models"
)

func TestHaversineIdentity(t *testing.T) {
	pts := [][2]float64{{0, 0}, {51.5, -0.12}, {-33.86, 151.2}, {90, 0}, {-90, 180}}
	for _, p := range pts {
		if d := HaversineKm(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("HaversineKm identity at (%v,%v) = %f, want 0", p[0], p[1], d)
		}
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := HaversineKm(51.5074, -0.1278, 48.8566, 2.3522)
	b := HaversineKm(48.8566, 2.3522, 51.5074, -0.1278)
	if a != b {
		t.Errorf("asymmetric: %f vs %f", a, b)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// London -> Paris is ~343 km
	d := HaversineKm(51.5074, -0.1278, 48.8566, 2.3522)
	if math.Abs(d-343) > 5 {
		t.Errorf("London-Paris = %f km, want ~343", d)
	}
}

func TestIndexNearbyRadiusAndUnknownLocation(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(models.Donor{ID: "near", Loc: models.Coord{Lat: 10.0, Lng: 10.01}})
	idx.Upsert(models.Donor{ID: "far", Loc: models.Coord{Lat: 11.0, Lng: 10.0}})
	idx.Upsert(models.Donor{ID: "unknown", Loc: models.Coord{}})

	got := idx.Nearby(10.0, 10.0, 5, 10)
	if len(got) != 1 || got[0].ID != "near" {
		t.Fatalf("Nearby = %+v, want only donor %q", got, "near")
	}
}

func TestIndexNearbySortsByDistance(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(models.Donor{ID: "b", Loc: models.Coord{Lat: 10.0, Lng: 10.02}})
	idx.Upsert(models.Donor{ID: "a", Loc: models.Coord{Lat: 10.0, Lng: 10.01}})
	idx.Upsert(models.Donor{ID: "c", Loc: models.Coord{Lat: 10.0, Lng: 10.03}})

	got := idx.Nearby(10.0, 10.0, 50, 2)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("Nearby order = %+v, want [a b]", got)
	}
}
