// Package geo normalizes CAP polygon and circle strings into validated
// GeoJSON geometry: it closes and validates polygon rings, repairs
// self-intersecting rings by reversing winding order, and tessellates CAP
// circles into 64-point polygons on the WGS-84 sphere.
package geo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"capalert/internal/model"
)

// EarthRadiusMeters is the WGS-84 equatorial (semi-major axis) earth radius,
// used as the sphere radius for circle tessellation.
const EarthRadiusMeters = 6378137.0

// CircleTessellationPoints is the number of equally-spaced bearings used to
// approximate a CAP circle as a polygon ring.
const CircleTessellationPoints = 64

// Point is a [lat, lon] pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Ring is a closed, validated GeoJSON linear ring in [lon, lat] order.
type Ring [][2]float64

// Geometry is the normalized output for one area: either a single Polygon
// ring or several rings forming a MultiPolygon, never both unset with a
// non-empty Rings slice.
type Geometry struct {
	Type  string // "Polygon" or "MultiPolygon"
	Rings []Ring // one ring per Polygon; N rings for MultiPolygon
}

// BBox returns the axis-aligned bounding box (minLat, maxLat, minLon,
// maxLon) across every ring, for the store's spatial index columns.
func (g Geometry) BBox() (minLat, maxLat, minLon, maxLon float64) {
	minLat, minLon = math.Inf(1), math.Inf(1)
	maxLat, maxLon = math.Inf(-1), math.Inf(-1)
	for _, ring := range g.Rings {
		for _, pt := range ring {
			lon, lat := pt[0], pt[1]
			if lat < minLat {
				minLat = lat
			}
			if lat > maxLat {
				maxLat = lat
			}
			if lon < minLon {
				minLon = lon
			}
			if lon > maxLon {
				maxLon = lon
			}
		}
	}
	return
}

// ToModelGeoJSON marshals the geometry into the model.GeoJSON wire shape:
// a Polygon's coordinates are a single ring ([][]lonlat), a MultiPolygon's
// are one ring-list per input geometry.
func (g Geometry) ToModelGeoJSON() (*model.GeoJSON, error) {
	var raw []byte
	var err error
	switch g.Type {
	case "Polygon":
		raw, err = json.Marshal([]Ring{g.Rings[0]})
	default:
		wrapped := make([][]Ring, len(g.Rings))
		for i, r := range g.Rings {
			wrapped[i] = []Ring{r}
		}
		raw, err = json.Marshal(wrapped)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal geojson coordinates: %w", err)
	}
	return &model.GeoJSON{Type: g.Type, Coordinates: raw}, nil
}

// Normalizer turns raw CAP polygon/circle strings into a Geometry. It never
// returns an error: per spec, any failure is logged and the caller simply
// gets a nil Geometry for that area, leaving the alert record storable
// without spatial indexing.
type Normalizer struct {
	log *slog.Logger
}

// New builds a Normalizer. log may be nil, in which case a discard logger
// is used.
func New(log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{log: log}
}

// Normalize converts the raw polygon and circle strings attached to one
// CAP area into a single Geometry (Polygon if exactly one valid ring
// results, MultiPolygon if several). Returns nil if no valid geometry
// could be produced from any input string.
func (n *Normalizer) Normalize(polygons, circles []string) *Geometry {
	var rings []Ring

	for _, raw := range polygons {
		pts, err := parsePolygonString(raw)
		if err != nil {
			n.log.Warn("geo: discarding polygon", "error", err)
			continue
		}
		ring, ok := n.buildRing(pts)
		if !ok {
			continue
		}
		rings = append(rings, ring)
	}

	for _, raw := range circles {
		ring, err := n.tessellateCircle(raw)
		if err != nil {
			n.log.Warn("geo: discarding circle", "error", err)
			continue
		}
		rings = append(rings, ring)
	}

	if len(rings) == 0 {
		return nil
	}
	geomType := "Polygon"
	if len(rings) > 1 {
		geomType = "MultiPolygon"
	}
	return &Geometry{Type: geomType, Rings: rings}
}

// buildRing closes, validates, and (if needed) repairs a candidate ring.
// Returns ok=false if the ring could not be made valid and should be
// dropped.
func (n *Normalizer) buildRing(pts []Point) (Ring, bool) {
	pts = dedupConsecutive(pts)
	if len(pts) < 3 {
		n.log.Warn("geo: ring has fewer than 3 unique points", "count", len(pts))
		return nil, false
	}
	if pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}

	ring := toLonLatRing(pts)
	if isValidRing(ring) {
		return ring, true
	}

	reversed := reverseRing(ring)
	if isValidRing(reversed) {
		return reversed, true
	}

	n.log.Warn("geo: self-intersecting ring could not be repaired, dropping")
	return nil, false
}

// parsePolygonString parses a CAP polygon string "lat1,lon1 lat2,lon2 ...".
// Some feeds space-separate lat and lon instead of comma-separating them;
// both layouts are accepted.
func parsePolygonString(raw string) ([]Point, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty polygon string")
	}

	var nums []float64
	for _, f := range fields {
		if strings.Contains(f, ",") {
			parts := strings.SplitN(f, ",", 2)
			lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 != nil || err2 != nil {
				continue
			}
			nums = append(nums, lat, lon)
		} else {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				continue
			}
			nums = append(nums, v)
		}
	}
	if len(nums)%2 != 0 {
		nums = nums[:len(nums)-1]
	}

	var pts []Point
	for i := 0; i+1 < len(nums); i += 2 {
		lat, lon := nums[i], nums[i+1]
		if !validLatLon(lat, lon) {
			continue
		}
		pts = append(pts, Point{Lat: lat, Lon: lon})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no valid points in polygon string %q", raw)
	}
	return pts, nil
}

func validLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func dedupConsecutive(pts []Point) []Point {
	out := make([]Point, 0, len(pts))
	for i, p := range pts {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	// closing duplicate at the end is handled separately by buildRing
	if len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

func toLonLatRing(pts []Point) Ring {
	ring := make(Ring, len(pts))
	for i, p := range pts {
		ring[i] = [2]float64{p.Lon, p.Lat}
	}
	return ring
}

func reverseRing(ring Ring) Ring {
	out := make(Ring, len(ring))
	for i, pt := range ring {
		out[len(ring)-1-i] = pt
	}
	return out
}

// isValidRing reports whether no two non-adjacent edges of the ring
// intersect. ring must already be closed (first point == last point).
func isValidRing(ring Ring) bool {
	n := len(ring) - 1 // number of edges, excluding the closing duplicate
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := ring[i], ring[i+1]
		for j := i + 1; j < n; j++ {
			// adjacent edges (including the wrap-around pair) always share
			// an endpoint and are not checked for crossing.
			if j == i || j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := ring[j], ring[j+1]
			if segmentsIntersect(a1, a2, b1, b2) {
				return false
			}
		}
	}
	return true
}

// segmentsIntersect reports whether segment p1p2 crosses segment p3p4,
// using orientation tests and collinear-overlap detection.
func segmentsIntersect(p1, p2, p3, p4 [2]float64) bool {
	d1 := orientation(p3, p4, p1)
	d2 := orientation(p3, p4, p2)
	d3 := orientation(p1, p2, p3)
	d4 := orientation(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

// orientation returns the signed area of triangle (a, b, c); zero means
// collinear, positive/negative give turn direction.
func orientation(a, b, c [2]float64) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment reports whether point p, known collinear with segment a-b, lies
// within its bounding box.
func onSegment(a, b, p [2]float64) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// tessellateCircle parses a CAP circle string "lat,lon radiusKm" and
// produces a closed ring of CircleTessellationPoints vertices on the
// WGS-84 great circle.
func (n *Normalizer) tessellateCircle(raw string) (Ring, error) {
	fields := strings.Fields(strings.ReplaceAll(raw, ",", " "))
	if len(fields) != 3 {
		return nil, fmt.Errorf("circle string %q does not have lat, lon, radius", raw)
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	radiusKm, err3 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("circle string %q is not parseable", raw)
	}
	if !validLatLon(lat, lon) {
		return nil, fmt.Errorf("circle center (%v,%v) out of range", lat, lon)
	}
	if radiusKm <= 0 || math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, fmt.Errorf("circle radius %v invalid", radiusKm)
	}

	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	d := (radiusKm * 1000) / EarthRadiusMeters

	pts := make([]Point, 0, CircleTessellationPoints+1)
	for i := 0; i < CircleTessellationPoints; i++ {
		theta := 2 * math.Pi * float64(i) / float64(CircleTessellationPoints)
		latPrime := math.Asin(math.Sin(latRad)*math.Cos(d) + math.Cos(latRad)*math.Sin(d)*math.Cos(theta))
		lonPrime := lonRad + math.Atan2(
			math.Sin(theta)*math.Sin(d)*math.Cos(latRad),
			math.Cos(d)-math.Sin(latRad)*math.Sin(latPrime),
		)
		pts = append(pts, Point{
			Lat: latPrime * 180 / math.Pi,
			Lon: lonPrime * 180 / math.Pi,
		})
	}
	pts = append(pts, pts[0])

	ring := toLonLatRing(pts)
	if !isValidRing(ring) {
		return nil, fmt.Errorf("tessellated circle ring for %q failed validation", raw)
	}
	return ring, nil
}
