package altpatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureListHas(t *testing.T) {
	assert := assert.New(t)

	var none FeatureList
	assert.False(none.Has(FeatureAES))

	l := FeatureList{FeatureAtomics, FeatureCRC32}
	assert.True(l.Has(FeatureAtomics))
	assert.True(l.Has(FeatureCRC32))
	assert.False(l.Has(FeatureSVE))
}

func TestParseFeature(t *testing.T) {
	assert := assert.New(t)

	// Every named feature parses back from its own name.
	for _, hw := range hwcaps {
		f, err := ParseFeature(hw.feature.String())
		if assert.NoError(err, hw.feature.String()) {
			assert.Equal(hw.feature, f)
		}
	}

	_, err := ParseFeature("warp-drive")
	assert.Error(err)
}

func TestFeatureString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("atomics", FeatureAtomics.String())
	assert.Equal("sve", FeatureSVE.String())
	assert.Equal("feature(999)", Feature(999).String())
}

func TestDetectFeatures(t *testing.T) {
	assert := assert.New(t)

	// Contents depend on the host; the shape does not.
	l := DetectFeatures()
	seen := make(map[Feature]bool)
	for _, f := range l {
		assert.False(seen[f], "duplicate feature %s", f)
		seen[f] = true
		assert.False(strings.HasPrefix(f.String(), "feature("), "unnamed feature %d", uint16(f))
		assert.True(l.Has(f))
	}
}
