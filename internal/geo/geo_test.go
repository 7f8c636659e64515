package geo

import (
	"math"
	"testing"
)

func TestNormalizeSimplePolygon(t *testing.T) {
	n := New(nil)
	geom := n.Normalize([]string{"10,20 10,30 20,30 20,20"}, nil)
	if geom == nil {
		t.Fatal("expected geometry, got nil")
	}
	if geom.Type != "Polygon" {
		t.Errorf("type = %q, want Polygon", geom.Type)
	}
	if len(geom.Rings) != 1 {
		t.Fatalf("rings = %d, want 1", len(geom.Rings))
	}
	ring := geom.Rings[0]
	want := Ring{{20, 10}, {30, 10}, {30, 20}, {20, 20}, {20, 10}}
	if len(ring) != len(want) {
		t.Fatalf("ring length = %d, want %d", len(ring), len(want))
	}
	for i := range want {
		if ring[i] != want[i] {
			t.Errorf("ring[%d] = %v, want %v", i, ring[i], want[i])
		}
	}
}

func TestNormalizeSelfIntersectingBowtieIsDropped(t *testing.T) {
	n := New(nil)
	geom := n.Normalize([]string{"0,0 0,10 10,0 10,10"}, nil)
	if geom != nil {
		t.Fatalf("expected nil geometry for unrepairable bowtie, got %+v", geom)
	}
}

func TestNormalizeRejectsOutOfRangeCoordinates(t *testing.T) {
	n := New(nil)
	geom := n.Normalize([]string{"200,20 10,30 20,30"}, nil)
	// one point dropped (200 lat out of range), leaves only 2 points -> invalid ring
	if geom != nil {
		t.Fatalf("expected nil geometry, got %+v", geom)
	}
}

func TestNormalizeMultiplePolygonsProducesMultiPolygon(t *testing.T) {
	n := New(nil)
	geom := n.Normalize([]string{
		"10,20 10,30 20,30 20,20",
		"40,50 40,60 50,60 50,50",
	}, nil)
	if geom == nil {
		t.Fatal("expected geometry")
	}
	if geom.Type != "MultiPolygon" {
		t.Errorf("type = %q, want MultiPolygon", geom.Type)
	}
	if len(geom.Rings) != 2 {
		t.Errorf("rings = %d, want 2", len(geom.Rings))
	}
}

func TestTessellateCircleWithinToleranceOfRadius(t *testing.T) {
	n := New(nil)
	const latC, lonC, radiusKm = 37.0, -122.0, 50.0
	geom := n.Normalize(nil, []string{"37.0,-122.0 50"})
	if geom == nil {
		t.Fatal("expected geometry from circle")
	}
	if len(geom.Rings) != 1 {
		t.Fatalf("rings = %d, want 1", len(geom.Rings))
	}
	ring := geom.Rings[0]
	if len(ring) != CircleTessellationPoints+1 {
		t.Fatalf("ring length = %d, want %d", len(ring), CircleTessellationPoints+1)
	}
	for _, pt := range ring[:len(ring)-1] {
		lon, lat := pt[0], pt[1]
		dist := haversineKm(latC, lonC, lat, lon)
		relErr := math.Abs(dist-radiusKm) / radiusKm
		if relErr > 0.001 {
			t.Errorf("vertex (%v,%v) distance %.4fkm, relative error %.4f%% exceeds tolerance", lat, lon, dist, relErr*100)
		}
	}
}

func TestTessellateCircleInvalidRadiusSkipped(t *testing.T) {
	n := New(nil)
	geom := n.Normalize(nil, []string{"37.0,-122.0 -5"})
	if geom != nil {
		t.Fatalf("expected nil geometry for negative radius, got %+v", geom)
	}
}

func TestBBox(t *testing.T) {
	n := New(nil)
	geom := n.Normalize([]string{"10,20 10,30 20,30 20,20"}, nil)
	minLat, maxLat, minLon, maxLon := geom.BBox()
	if minLat != 10 || maxLat != 20 || minLon != 20 || maxLon != 30 {
		t.Errorf("bbox = (%v,%v,%v,%v), want (10,20,20,30)", minLat, maxLat, minLon, maxLon)
	}
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return (EarthRadiusMeters / 1000) * c
}
