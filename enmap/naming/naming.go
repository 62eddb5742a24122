// Package naming classifies sets of EnMAP file names by processing level.
package naming

import (
	"path"
	"regexp"
	"strings"

	"github.com/example/go-enmap/enmap/meta"
)

// baseName matches the product identifier shared by every file of a product.
const baseName = `ENMAP\d{2}-____%s-DT.{9}_\d{8}T\d{6}Z_.{3}_V.{6}_\d{8}T\d{6}Z`

// spectralEncodings are the accepted raster encodings of the spectral image.
const spectralEncodings = `\.(TIF|HDR|JPEG2000)`

var (
	splitSuffixes = []string{
		regexp.QuoteMeta(meta.MetadataSuffix),
		`-QL_PIXELMASK_SWIR\.TIF`,
		`-QL_PIXELMASK_VNIR\.TIF`,
		`-QL_QUALITY_CIRRUS\.TIF`,
		`-QL_QUALITY_CLASSES\.TIF`,
		`-QL_QUALITY_CLOUD\.TIF`,
		`-QL_QUALITY_CLOUDSHADOW\.TIF`,
		`-QL_QUALITY_HAZE\.TIF`,
		`-QL_QUALITY_SNOW\.TIF`,
		`-QL_QUALITY_TESTFLAGS_SWIR\.TIF`,
		`-QL_QUALITY_TESTFLAGS_VNIR\.TIF`,
		`-SPECTRAL_IMAGE_SWIR` + spectralEncodings,
		`-SPECTRAL_IMAGE_VNIR` + spectralEncodings,
	}
	mergedSuffixes = []string{
		regexp.QuoteMeta(meta.MetadataSuffix),
		`-QL_PIXELMASK\.TIF`,
		`-QL_QUALITY_CIRRUS\.TIF`,
		`-QL_QUALITY_CLASSES\.TIF`,
		`-QL_QUALITY_CLOUD\.TIF`,
		`-QL_QUALITY_CLOUDSHADOW\.TIF`,
		`-QL_QUALITY_HAZE\.TIF`,
		`-QL_QUALITY_SNOW\.TIF`,
		`-QL_QUALITY_TESTFLAGS\.TIF`,
		`-SPECTRAL_IMAGE` + spectralEncodings,
	}

	archivePattern = regexp.MustCompile(`^` + strings.Replace(baseName, "%s", `(L1B|L1C|L2A)`, 1) + `(?i:\.zip)$`)

	patterns = map[meta.Level][]*regexp.Regexp{
		meta.LevelL1B: compile(meta.LevelL1B, splitSuffixes),
		meta.LevelL1C: compile(meta.LevelL1C, mergedSuffixes),
		meta.LevelL2A: compile(meta.LevelL2A, mergedSuffixes),
	}
)

func compile(level meta.Level, suffixes []string) []*regexp.Regexp {
	base := strings.Replace(baseName, "%s", level.String(), 1)
	out := make([]*regexp.Regexp, 0, len(suffixes))
	for _, suffix := range suffixes {
		out = append(out, regexp.MustCompile("^"+base+suffix+"$"))
	}
	return out
}

// Patterns returns the required file name patterns of a level.
func Patterns(level meta.Level) []*regexp.Regexp {
	return append([]*regexp.Regexp(nil), patterns[level]...)
}

// Matches reports whether names satisfy every required pattern of level.
// Names are compared by their base name.
func Matches(level meta.Level, names []string) bool {
	required, ok := patterns[level]
	if !ok || len(names) == 0 {
		return false
	}
	bases := make([]string, 0, len(names))
	for _, name := range names {
		bases = append(bases, path.Base(strings.ReplaceAll(name, "\\", "/")))
	}
	for _, re := range required {
		found := false
		for _, b := range bases {
			if re.MatchString(b) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Classify returns the level whose required patterns are all satisfied by
// names. It never fails; ok is false when no level matches.
func Classify(names []string) (level meta.Level, ok bool) {
	for _, lvl := range meta.Levels {
		if Matches(lvl, names) {
			return lvl, true
		}
	}
	return "", false
}

// MetadataFile returns the first name ending with the metadata suffix.
func MetadataFile(names []string) (string, bool) {
	for _, name := range names {
		if strings.HasSuffix(name, meta.MetadataSuffix) {
			return name, true
		}
	}
	return "", false
}

// ClassifyArchive classifies a product archive by its own file name, for
// archives whose entries cannot be listed without fetching them.
func ClassifyArchive(name string) (level meta.Level, ok bool) {
	m := archivePattern.FindStringSubmatch(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if m == nil {
		return "", false
	}
	return meta.Level(m[1]), true
}
