package geo

import (
	"math"
	"sync"
	"time"

	"github.com/example/plasma-match/internal/models"
)

// Geo is the minimal interface required by the search handlers: a coarse
// radius cut over donor snapshots. The matcher re-applies the exact
// haversine filter on whatever comes back.
type Geo interface {
	Nearby(lat, lng, radiusKm float64, limit int) []models.Donor
	Upsert(d models.Donor)
}

type Index struct {
	mu     sync.RWMutex
	donors map[string]models.Donor
}

func NewIndex() *Index {
	return &Index{donors: make(map[string]models.Donor)}
}

func (g *Index) Upsert(d models.Donor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d.LastActive.IsZero() {
		d.LastActive = time.Now()
	}
	g.donors[d.ID] = d
}

// naive scan; in prod use Redis GEO (redis_geo.go) or a geo-hash index
func (g *Index) Nearby(lat, lng, radiusKm float64, limit int) []models.Donor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Donor
		dist float64
	}
	arr := make([]pair, 0, len(g.donors))
	for _, d := range g.donors {
		if d.Loc.IsZero() {
			continue
		}
		dist := HaversineKm(lat, lng, d.Loc.Lat, d.Loc.Lng)
		if dist > radiusKm {
			continue
		}
		arr = append(arr, pair{d, dist})
	}
	// partial selection sort for top-N by distance
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Donor, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out
}

// HaversineKm is the great-circle distance in kilometers on a sphere of
// radius 6371 km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
