package projection

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	esriZone  = regexp.MustCompile(`(?i)JGD_?(2000|2011)_Japan_Zone_(\d{1,2})`)
	ogcZone   = regexp.MustCompile(`(?i)JGD ?(2000|2011) / Japan Plane Rectangular CS ([IVX]+)`)
	authority = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\]\s*$`)
)

var romanZones = map[string]int{
	"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5, "VI": 6, "VII": 7, "VIII": 8, "IX": 9, "X": 10,
	"XI": 11, "XII": 12, "XIII": 13, "XIV": 14, "XV": 15, "XVI": 16, "XVII": 17, "XVIII": 18, "XIX": 19,
}

// DetectPRJ returns the EPSG code described by the WKT of a .prj file. The
// boolean is false when the CRS is not recognized.
func DetectPRJ(wkt string) (int, bool) {
	wkt = strings.TrimSpace(wkt)
	if m := authority.FindStringSubmatch(wkt); m != nil {
		code, err := strconv.Atoi(m[1])
		return code, err == nil
	}
	if m := esriZone.FindStringSubmatch(wkt); m != nil {
		zone, _ := strconv.Atoi(m[2])
		return zoneCode(m[1], zone)
	}
	if m := ogcZone.FindStringSubmatch(wkt); m != nil {
		return zoneCode(m[1], romanZones[strings.ToUpper(m[2])])
	}
	if strings.HasPrefix(strings.ToUpper(wkt), "PROJCS") {
		if strings.Contains(wkt, "Mercator_Auxiliary_Sphere") || strings.Contains(wkt, "Pseudo-Mercator") {
			return WebMercator, true
		}
		return 0, false
	}
	switch {
	case strings.Contains(wkt, "JGD_2011") || strings.Contains(wkt, "JGD2011"):
		return JGD2011, true
	case strings.Contains(wkt, "JGD_2000") || strings.Contains(wkt, "JGD2000"):
		return JGD2000, true
	case strings.Contains(wkt, "WGS_1984") || strings.Contains(wkt, "WGS 84"):
		return WGS84, true
	}
	return 0, false
}

func zoneCode(datum string, zone int) (int, bool) {
	if zone < 1 || zone > zoneCount {
		return 0, false
	}
	if datum == "2000" {
		return jgd2000ZoneBase + zone - 1, true
	}
	return jgd2011ZoneBase + zone - 1, true
}

// ReadPRJ reads a .prj file and returns its CRS as "EPSG:<code>".
func ReadPRJ(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "projection: read %s", path)
	}
	code, ok := DetectPRJ(string(data))
	if !ok {
		return "", eris.Wrapf(ErrUnsupported, "unrecognized .prj %s", path)
	}
	return "EPSG:" + strconv.Itoa(code), nil
}
