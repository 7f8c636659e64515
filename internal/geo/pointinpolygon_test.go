package geo

import (
	"testing"

	"capalert/internal/model"
)

func squarePolygon() *model.GeoJSON {
	return &model.GeoJSON{
		Type:        "Polygon",
		Coordinates: []byte(`[[[20,10],[30,10],[30,20],[20,20],[20,10]]]`),
	}
}

func TestPointInGeoJSONPolygonInsideAndOutside(t *testing.T) {
	gj := squarePolygon()

	inside, err := PointInGeoJSON(15, 25, gj)
	if err != nil {
		t.Fatalf("point in polygon: %v", err)
	}
	if !inside {
		t.Error("expected (15, 25) to be inside the square")
	}

	outside, err := PointInGeoJSON(50, 50, gj)
	if err != nil {
		t.Fatalf("point in polygon: %v", err)
	}
	if outside {
		t.Error("expected (50, 50) to be outside the square")
	}
}

func TestPointInGeoJSONMultiPolygon(t *testing.T) {
	gj := &model.GeoJSON{
		Type: "MultiPolygon",
		Coordinates: []byte(
			`[[[[20,10],[30,10],[30,20],[20,20],[20,10]]],[[[120,60],[130,60],[130,70],[120,70],[120,60]]]]`,
		),
	}

	first, err := PointInGeoJSON(15, 25, gj)
	if err != nil {
		t.Fatalf("point in multipolygon (first ring): %v", err)
	}
	if !first {
		t.Error("expected (15, 25) to be inside the first polygon")
	}

	second, err := PointInGeoJSON(65, 125, gj)
	if err != nil {
		t.Fatalf("point in multipolygon (second ring): %v", err)
	}
	if !second {
		t.Error("expected (65, 125) to be inside the second polygon")
	}

	neither, err := PointInGeoJSON(0, 0, gj)
	if err != nil {
		t.Fatalf("point in multipolygon (outside both): %v", err)
	}
	if neither {
		t.Error("expected (0, 0) to be outside both polygons")
	}
}

func TestPointInGeoJSONUnknownTypeErrors(t *testing.T) {
	gj := &model.GeoJSON{Type: "Point", Coordinates: []byte(`[0,0]`)}
	if _, err := PointInGeoJSON(0, 0, gj); err == nil {
		t.Error("expected an error for an unsupported geometry type")
	}
}
