package coverage

import (
	"context"
	"math"
	"testing"

	"github.com/circletel/circletel/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var sandton = Point{Lat: -26.1076, Lng: 28.0567}

func TestDistance(t *testing.T) {
	jhb := Point{Lat: -26.2041, Lng: 28.0473}
	pta := Point{Lat: -25.7479, Lng: 28.2293}
	if d := Distance(jhb, pta); math.Abs(d-53.89) > 0.05 {
		t.Errorf("Johannesburg to Pretoria = %.2f km", d)
	}
	if d := Distance(jhb, jhb); d != 0 {
		t.Errorf("zero distance = %f", d)
	}
}

func TestSyncSkipsIncompleteStations(t *testing.T) {
	s := newTestStore(t)
	res, err := Sync(context.Background(), s, []store.BaseStation{
		{SiteCode: "BN-SAN-01", Latitude: -26.11, Longitude: 28.06},
		{SiteCode: "", Latitude: -26.13, Longitude: 28.07},
		{SiteCode: "BN-NOLOC"},
		{SiteCode: "BN-SAN-01", Latitude: -26.11, Longitude: 28.06},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Received != 4 || res.Upserted != 1 || res.Skipped != 3 || len(res.Errors) != 3 {
		t.Errorf("result: %+v", res)
	}
	all, _ := s.ListBaseStations(context.Background())
	if len(all) != 1 || all[0].Name != "Unknown Site" || all[0].Provider != "tarana" || all[0].Status != "active" {
		t.Errorf("stations: %+v", all)
	}
}

func TestSyncUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := Sync(ctx, s, []store.BaseStation{{SiteCode: "BN-SAN-01", Name: "Sandton", Latitude: -26.11, Longitude: 28.06}}); err != nil {
		t.Fatal(err)
	}
	if _, err := Sync(ctx, s, []store.BaseStation{{SiteCode: "BN-SAN-01", Name: "Sandton North", Latitude: -26.10, Longitude: 28.06}}); err != nil {
		t.Fatal(err)
	}
	all, _ := s.ListBaseStations(ctx)
	if len(all) != 1 || all[0].Name != "Sandton North" || all[0].Latitude != -26.10 {
		t.Errorf("stations: %+v", all)
	}
}

func TestNearest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := Sync(ctx, s, []store.BaseStation{
		{SiteCode: "BN-FAR", Latitude: -26.2041, Longitude: 28.0473},
		{SiteCode: "BN-MID", Latitude: -26.1300, Longitude: 28.0700},
		{SiteCode: "BN-NEAR", Latitude: -26.1100, Longitude: 28.0600},
		{SiteCode: "BN-OFF", Latitude: -26.1080, Longitude: 28.0570, Status: "maintenance"},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Nearest(ctx, s, sandton, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].SiteCode != "BN-NEAR" || got[1].SiteCode != "BN-MID" {
		t.Fatalf("nearest: %+v", got)
	}
	if got[0].DistanceKm != 0.42 || got[1].DistanceKm != 2.82 {
		t.Errorf("distances: %.2f %.2f", got[0].DistanceKm, got[1].DistanceKm)
	}

	wide, _ := Nearest(ctx, s, sandton, 20, 1)
	if len(wide) != 1 || wide[0].SiteCode != "BN-NEAR" {
		t.Errorf("limited: %+v", wide)
	}
}
