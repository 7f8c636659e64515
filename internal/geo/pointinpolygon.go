package geo

import (
	"encoding/json"
	"fmt"

	"capalert/internal/model"
)

// PointInGeoJSON reports whether the point (lat, lon) falls inside gj,
// which must be a Polygon or MultiPolygon produced by this package. Used
// by the store's findByPoint query after bbox pruning has narrowed the
// candidate set (spec.md §4.4).
func PointInGeoJSON(lat, lon float64, gj *model.GeoJSON) (bool, error) {
	if gj == nil {
		return false, nil
	}
	switch gj.Type {
	case "Polygon":
		var rings []Ring
		if err := json.Unmarshal(gj.Coordinates, &rings); err != nil {
			return false, fmt.Errorf("unmarshal polygon coordinates: %w", err)
		}
		return pointInPolygonRings(lat, lon, rings), nil
	case "MultiPolygon":
		var polygons [][]Ring
		if err := json.Unmarshal(gj.Coordinates, &polygons); err != nil {
			return false, fmt.Errorf("unmarshal multipolygon coordinates: %w", err)
		}
		for _, rings := range polygons {
			if pointInPolygonRings(lat, lon, rings) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported geometry type %q", gj.Type)
	}
}

// pointInPolygonRings treats rings[0] as the exterior ring and any further
// rings as holes (standard GeoJSON convention), though CAP areas in
// practice only ever produce a single exterior ring.
func pointInPolygonRings(lat, lon float64, rings []Ring) bool {
	if len(rings) == 0 || !pointInRing(lat, lon, rings[0]) {
		return false
	}
	for _, hole := range rings[1:] {
		if pointInRing(lat, lon, hole) {
			return false
		}
	}
	return true
}

// pointInRing is a standard ray-casting point-in-polygon test. ring holds
// [lon, lat] pairs; the ring is assumed closed (first point == last).
func pointInRing(lat, lon float64, ring Ring) bool {
	inside := false
	n := len(ring)
	if n < 4 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		intersects := (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
	}
	return inside
}
