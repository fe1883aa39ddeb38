// Package projection identifies the coordinate reference systems forest
// survey data ships in and reprojects coordinates between them.
package projection

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

// ErrUnsupported is returned for EPSG codes the Transformer cannot handle.
var ErrUnsupported = eris.New("projection: unsupported CRS")

// EPSG codes handled outside the plane rectangular ranges.
const (
	WGS84       = 4326
	JGD2000     = 4612
	JGD2011     = 6668
	WebMercator = 3857
)

// Japan Plane Rectangular CS zones I..XIX.
const (
	jgd2000ZoneBase = 2443
	jgd2011ZoneBase = 6669
	zoneCount       = 19
)

// Supported reports whether code can be reprojected.
func Supported(code int) bool {
	switch {
	case code == WGS84 || code == JGD2000 || code == JGD2011 || code == WebMercator:
		return true
	case code >= jgd2011ZoneBase && code < jgd2011ZoneBase+zoneCount:
		return true
	case code >= jgd2000ZoneBase && code < jgd2000ZoneBase+zoneCount:
		return true
	default:
		return false
	}
}

// canonical folds the GRS80 geographic datums onto WGS84.
func canonical(code int) int {
	if code == JGD2000 || code == JGD2011 {
		return WGS84
	}
	return code
}

// ParseEPSG accepts "EPSG:6680", "epsg:6680" or "6680".
func ParseEPSG(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		if !strings.EqualFold(s[:i], "epsg") {
			return 0, eris.Errorf("projection: unknown authority in %q", s)
		}
		s = s[i+1:]
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, eris.Errorf("projection: invalid EPSG code %q", s)
	}
	return code, nil
}

// Same reports whether two CRS strings name the same EPSG code. Unparseable
// strings compare by their trimmed text.
func Same(a, b string) bool {
	ca, errA := ParseEPSG(a)
	cb, errB := ParseEPSG(b)
	if errA == nil && errB == nil {
		return ca == cb
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Transformer reprojects flat XY coordinate slices between EPSG codes using
// the wgs84 EPSG repository.
type Transformer struct{}

// Reproject transforms flat in place from src to dst.
func (Transformer) Reproject(src, dst string, flat []float64) error {
	from, err := lookup(src)
	if err != nil {
		return err
	}
	to, err := lookup(dst)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}

	epsg := wgs84.EPSG()
	transform := epsg.Transform(from, to)
	for i := 0; i+1 < len(flat); i += 2 {
		flat[i], flat[i+1], _ = transform(flat[i], flat[i+1], 0)
	}
	return nil
}

func lookup(crs string) (int, error) {
	code, err := ParseEPSG(crs)
	if err != nil {
		return 0, err
	}
	if !Supported(code) {
		return 0, eris.Wrapf(ErrUnsupported, "EPSG:%d", code)
	}
	return canonical(code), nil
}
