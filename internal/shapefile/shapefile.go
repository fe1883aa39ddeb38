// Package shapefile decodes polygon geometries from ESRI Shapefile (.shp)
// streams. Records of other shape types are skipped.
package shapefile

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ShapeType is the shape type code stored in the file and record headers.
type ShapeType int32

// Shape type codes.
const (
	NullShape   ShapeType = 0
	Point       ShapeType = 1
	PolyLine    ShapeType = 3
	Polygon     ShapeType = 5
	MultiPoint  ShapeType = 8
	PointZ      ShapeType = 11
	PolyLineZ   ShapeType = 13
	PolygonZ    ShapeType = 15
	MultiPointZ ShapeType = 18
	PointM      ShapeType = 21
	PolyLineM   ShapeType = 23
	PolygonM    ShapeType = 25
	MultiPointM ShapeType = 28
	MultiPatch  ShapeType = 31
)

var shapeTypeNames = map[ShapeType]string{
	NullShape:   "null",
	Point:       "point",
	PolyLine:    "polyline",
	Polygon:     "polygon",
	MultiPoint:  "multipoint",
	PointZ:      "pointz",
	PolyLineZ:   "polylinez",
	PolygonZ:    "polygonz",
	MultiPointZ: "multipointz",
	PointM:      "pointm",
	PolyLineM:   "polylinem",
	PolygonM:    "polygonm",
	MultiPointM: "multipointm",
	MultiPatch:  "multipatch",
}

func (t ShapeType) String() string {
	if name, ok := shapeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int32(t))
}

// Errors returned by the reader.
var (
	ErrMalformedHeader  = eris.New("shapefile: malformed header")
	ErrTruncatedRecord  = eris.New("shapefile: truncated record")
	ErrInvalidPartIndex = eris.New("shapefile: invalid part index")
)

// Header is the fixed 100-byte file header. It is informational only; the
// reader never rejects a file based on its contents.
type Header struct {
	FileCode   int32
	FileLength int // bytes
	Version    int32
	ShapeType  ShapeType
	BBox       [4]float64 // xmin, ymin, xmax, ymax
}
