package shapefile

import (
	"encoding/binary"
	"math"

	"github.com/twpayne/go-geom"
)

type pt = [2]float64

// polygonContent encodes a polygon record body, shape type included.
func polygonContent(parts []int32, points []pt) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(Polygon))
	b = append(b, make([]byte, bboxSize)...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(parts)))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(points)))
	for _, p := range parts {
		b = binary.LittleEndian.AppendUint32(b, uint32(p))
	}
	for _, p := range points {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p[0]))
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p[1]))
	}
	return b
}

func pointContent(x, y float64) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(Point))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(y))
}

func nullContent() []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(NullShape))
}

// buildSHP frames each content with a record header behind a polygon file header.
func buildSHP(contents ...[]byte) []byte {
	var body []byte
	for i, c := range contents {
		body = binary.BigEndian.AppendUint32(body, uint32(i+1))
		body = binary.BigEndian.AppendUint32(body, uint32(len(c)/2))
		body = append(body, c...)
	}

	head := make([]byte, fileHeaderSize)
	binary.BigEndian.PutUint32(head[0:4], 9994)
	binary.BigEndian.PutUint32(head[24:28], uint32((fileHeaderSize+len(body))/2))
	binary.LittleEndian.PutUint32(head[28:32], 1000)
	binary.LittleEndian.PutUint32(head[32:36], uint32(Polygon))
	binary.LittleEndian.PutUint64(head[36:44], math.Float64bits(139.0))
	binary.LittleEndian.PutUint64(head[44:52], math.Float64bits(41.0))
	binary.LittleEndian.PutUint64(head[52:60], math.Float64bits(141.5))
	binary.LittleEndian.PutUint64(head[60:68], math.Float64bits(43.0))
	return append(head, body...)
}

var sixPoints = []pt{
	{0, 0}, {0, 1}, {1, 1}, {0, 0},
	{5, 5}, {6, 6},
}

func numCoords(g geom.T) int {
	return len(g.FlatCoords()) / g.Stride()
}
