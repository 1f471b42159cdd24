package identity

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

//go:embed regions.geojson
var regionsGeoJSON []byte

type country struct {
	code  string
	geom  orb.Geometry
	bound orb.Bound
	area  float64
}

// Geo answers point-in-polygon country lookups over a coarse boundary set.
// Smaller shapes are tested first so enclosed or overlapping neighbours win
// over their larger surroundings.
type Geo struct {
	countries []country
}

// ParseGeo builds a Geo from a GeoJSON FeatureCollection whose features
// carry an "iso" property and Polygon or MultiPolygon geometry.
func ParseGeo(data []byte) (*Geo, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	g := &Geo{}
	for i, f := range fc.Features {
		code := strings.ToUpper(f.Properties.MustString("iso", ""))
		if code == "" {
			return nil, fmt.Errorf("regions feature %d: missing iso", i)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("regions feature %s: unsupported geometry %s", code, f.Geometry.GeoJSONType())
		}
		g.countries = append(g.countries, country{
			code:  code,
			geom:  f.Geometry,
			bound: f.Geometry.Bound(),
			area:  math.Abs(planar.Area(f.Geometry)),
		})
	}
	if len(g.countries) == 0 {
		return nil, errors.New("regions: no features")
	}
	sort.SliceStable(g.countries, func(i, j int) bool { return g.countries[i].area < g.countries[j].area })
	return g, nil
}

var (
	defaultGeoOnce sync.Once
	defaultGeo     *Geo
	defaultGeoErr  error
)

// DefaultGeo returns the Geo built from the embedded boundary set.
func DefaultGeo() (*Geo, error) {
	defaultGeoOnce.Do(func() {
		defaultGeo, defaultGeoErr = ParseGeo(regionsGeoJSON)
	})
	return defaultGeo, defaultGeoErr
}

// Lookup returns the ISO 3166-1 alpha-2 code of the country containing the
// coordinates. ok is false for invalid coordinates or points outside every
// known shape.
func (g *Geo) Lookup(lat, lon float64) (code string, ok bool) {
	if g == nil || !ValidCoordinates(lat, lon) {
		return "", false
	}
	pt := orb.Point{lon, lat}
	for _, c := range g.countries {
		if !c.bound.Contains(pt) {
			continue
		}
		var in bool
		switch geom := c.geom.(type) {
		case orb.Polygon:
			in = planar.PolygonContains(geom, pt)
		case orb.MultiPolygon:
			in = planar.MultiPolygonContains(geom, pt)
		}
		if in {
			return c.code, true
		}
	}
	return "", false
}

// ValidCoordinates reports whether lat/lon are finite and in range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
