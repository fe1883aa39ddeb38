package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/forest-geo/internal/dbf"
	"github.com/sells-group/forest-geo/internal/shapefile"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.shp|file.dbf>...",
	Short: "Print the header and record counts of .shp and .dbf files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encoding, _ := cmd.Flags().GetString("encoding")
		if encoding == "" {
			encoding = cfg.Convert.Encoding
		}

		for _, path := range args {
			var err error
			switch strings.ToLower(filepath.Ext(path)) {
			case ".shp":
				err = inspectSHP(os.Stdout, path)
			case ".dbf":
				err = inspectDBF(os.Stdout, path, encoding)
			default:
				err = eris.Errorf("inspect: unsupported file %s", path)
			}
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().String("encoding", "", "DBF text encoding (default: from config, shift_jis)")
	rootCmd.AddCommand(inspectCmd)
}

// shpSummary is what inspect reports for a .shp file.
type shpSummary struct {
	Header   shapefile.Header
	Counts   map[shapefile.ShapeType]int
	Polygons int
	Multi    int
}

func summarizeSHP(r io.Reader) (*shpSummary, error) {
	rd, err := shapefile.NewReader(r)
	if err != nil {
		return nil, err
	}
	s := &shpSummary{Header: rd.Header()}
	for {
		g, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, ok := g.(*geom.MultiPolygon); ok {
			s.Multi++
		} else {
			s.Polygons++
		}
	}
	s.Counts = rd.Counts()
	return s, nil
}

func inspectSHP(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "inspect: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	s, err := summarizeSHP(bufio.NewReader(f))
	if err != nil {
		return eris.Wrapf(err, "inspect: %s", path)
	}
	formatSHPSummary(out, path, s)
	return nil
}

func formatSHPSummary(out io.Writer, path string, s *shpSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	h := s.Header
	_, _ = fmt.Fprintf(w, "File:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "File code:\t%d\n", h.FileCode)
	_, _ = fmt.Fprintf(w, "Version:\t%d\n", h.Version)
	_, _ = fmt.Fprintf(w, "Length:\t%d bytes\n", h.FileLength)
	_, _ = fmt.Fprintf(w, "Shape type:\t%s\n", h.ShapeType)
	_, _ = fmt.Fprintf(w, "BBox:\t%g %g %g %g\n", h.BBox[0], h.BBox[1], h.BBox[2], h.BBox[3])

	types := make([]shapefile.ShapeType, 0, len(s.Counts))
	for t := range s.Counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		_, _ = fmt.Fprintf(w, "Records (%s):\t%d\n", t, s.Counts[t])
	}
	_, _ = fmt.Fprintf(w, "Polygons:\t%d\n", s.Polygons)
	_, _ = fmt.Fprintf(w, "MultiPolygons:\t%d\n", s.Multi)
	_ = w.Flush()
}

// dbfSummary is what inspect reports for a .dbf file.
type dbfSummary struct {
	Header  dbf.Header
	Records int
	Deleted int
}

func summarizeDBF(r io.Reader, encoding string) (*dbfSummary, error) {
	rd, err := dbf.NewReader(r, dbf.Options{Encoding: encoding})
	if err != nil {
		return nil, err
	}
	s := &dbfSummary{Header: rd.Header()}
	for {
		_, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		s.Records++
	}
	s.Deleted = rd.Deleted()
	return s, nil
}

func inspectDBF(out io.Writer, path, encoding string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "inspect: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	s, err := summarizeDBF(bufio.NewReader(f), encoding)
	if err != nil {
		return eris.Wrapf(err, "inspect: %s", path)
	}
	formatDBFSummary(out, path, s)
	return nil
}

func formatDBFSummary(out io.Writer, path string, s *dbfSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	h := s.Header
	_, _ = fmt.Fprintf(w, "File:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "Version:\t0x%02X\n", h.Version)
	_, _ = fmt.Fprintf(w, "Declared records:\t%d\n", h.RecordCount)
	_, _ = fmt.Fprintf(w, "Records read:\t%d\n", s.Records)
	_, _ = fmt.Fprintf(w, "Deleted:\t%d\n", s.Deleted)
	_, _ = fmt.Fprintf(w, "Header length:\t%d\n", h.HeaderLength)
	_, _ = fmt.Fprintf(w, "Record length:\t%d\n", h.RecordLength)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "FIELD\tTYPE\tLENGTH\tDECIMALS")
	for _, fd := range h.Fields {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", fd.Name, fd.Type, fd.Length, fd.Decimals)
	}
	_ = w.Flush()
}
