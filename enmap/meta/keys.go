package meta

import (
	"fmt"
	"path"
	"strings"
)

// Logical content keys. A key maps onto the product file whose base name,
// without extension, ends with the key.
const (
	KeyMetadata             = "METADATA"
	KeySpectralImage        = "SPECTRAL_IMAGE"
	KeySpectralImageVNIR    = "SPECTRAL_IMAGE_VNIR"
	KeySpectralImageSWIR    = "SPECTRAL_IMAGE_SWIR"
	KeyQualityClasses       = "QUALITY_CLASSES"
	KeyQualityCloud         = "QUALITY_CLOUD"
	KeyQualityCloudShadow   = "QUALITY_CLOUDSHADOW"
	KeyQualityHaze          = "QUALITY_HAZE"
	KeyQualityCirrus        = "QUALITY_CIRRUS"
	KeyQualitySnow          = "QUALITY_SNOW"
	KeyQualityTestFlags     = "QUALITY_TESTFLAGS"
	KeyQualityTestFlagsVNIR = "QUALITY_TESTFLAGS_VNIR"
	KeyQualityTestFlagsSWIR = "QUALITY_TESTFLAGS_SWIR"
	KeyPixelMask            = "PIXELMASK"
	KeyPixelMaskVNIR        = "PIXELMASK_VNIR"
	KeyPixelMaskSWIR        = "PIXELMASK_SWIR"
	MetadataSuffix          = "-METADATA.XML"
)

var qualityKeys = []string{
	KeyQualityClasses,
	KeyQualityCloud,
	KeyQualityCloudShadow,
	KeyQualityHaze,
	KeyQualityCirrus,
	KeyQualitySnow,
}

// QualityKeys returns the single-layer quality keys shared by every level.
func QualityKeys() []string {
	return append([]string(nil), qualityKeys...)
}

// FileKeys returns the logical keys a product of the given level declares.
func FileKeys(level Level) []string {
	keys := []string{KeyMetadata}
	switch level {
	case LevelL1B:
		keys = append(keys, KeySpectralImageVNIR, KeySpectralImageSWIR)
		keys = append(keys, qualityKeys...)
		keys = append(keys, KeyQualityTestFlagsVNIR, KeyQualityTestFlagsSWIR, KeyPixelMaskVNIR, KeyPixelMaskSWIR)
	case LevelL1C, LevelL2A:
		keys = append(keys, KeySpectralImage)
		keys = append(keys, qualityKeys...)
		keys = append(keys, KeyQualityTestFlags, KeyPixelMask)
	}
	return keys
}

// MatchFileNames maps each key onto the first name whose extension-less base
// name ends with it. Keys without a match are left out.
func MatchFileNames(names []string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		for _, name := range names {
			if strings.HasSuffix(stripExt(name), key) {
				out[key] = name
				break
			}
		}
	}
	return out
}

func stripExt(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// RequireFile looks up the file declared for key and fails with
// ErrFileNotFound when there is none.
func RequireFile(md Metadata, key string) (string, error) {
	name, ok := md.FileName(key)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, key)
	}
	return name, nil
}
