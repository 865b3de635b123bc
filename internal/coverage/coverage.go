// Package coverage keeps the base-station register used for wireless
// coverage checks.
package coverage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/circletel/circletel/internal/store"
)

const earthRadiusKm = 6371

// DefaultRadiusKm is the search radius used when a request gives none.
const DefaultRadiusKm = 5.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a usable, non-zero coordinate.
func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// SyncResult summarises a base-station sync.
type SyncResult struct {
	Received int      `json:"received"`
	Upserted int      `json:"upserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Sync upserts a batch of base stations by site code. Stations without a
// site code or a valid location are skipped and reported.
func Sync(ctx context.Context, s store.Store, stations []store.BaseStation) (*SyncResult, error) {
	res := &SyncResult{Received: len(stations)}
	valid := make([]store.BaseStation, 0, len(stations))
	seen := make(map[string]bool, len(stations))
	for _, st := range stations {
		st.SiteCode = strings.TrimSpace(st.SiteCode)
		if st.SiteCode == "" || !(Point{st.Latitude, st.Longitude}).Valid() {
			code := st.SiteCode
			if code == "" {
				code = "unknown"
			}
			res.Skipped++
			res.Errors = append(res.Errors, "Skipping base station with missing data: "+code)
			continue
		}
		if seen[st.SiteCode] {
			res.Skipped++
			res.Errors = append(res.Errors, "Skipping duplicate site code: "+st.SiteCode)
			continue
		}
		seen[st.SiteCode] = true
		if st.Name == "" {
			st.Name = "Unknown Site"
		}
		if st.Provider == "" {
			st.Provider = "tarana"
		}
		if st.Status == "" {
			st.Status = "active"
		}
		valid = append(valid, st)
	}
	if len(valid) == 0 {
		return res, nil
	}
	n, err := s.UpsertBaseStations(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("upsert base stations: %w", err)
	}
	res.Upserted = n
	return res, nil
}

// Nearby is a base station with its distance from a search point.
type Nearby struct {
	store.BaseStation
	DistanceKm float64 `json:"distance_km"`
}

// Nearest returns active base stations within radiusKm of p, closest
// first. A limit of zero or less returns every match.
func Nearest(ctx context.Context, s store.Store, p Point, radiusKm float64, limit int) ([]Nearby, error) {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	all, err := s.ListBaseStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list base stations: %w", err)
	}
	out := []Nearby{}
	for _, st := range all {
		if st.Status != "" && st.Status != "active" {
			continue
		}
		d := Distance(p, Point{st.Latitude, st.Longitude})
		if d > radiusKm {
			continue
		}
		out = append(out, Nearby{BaseStation: st, DistanceKm: math.Round(d*100) / 100})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
