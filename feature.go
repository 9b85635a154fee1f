package altpatch

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// Feature identifies a CPU capability a patch site is gated on. The
// numbering is part of the descriptor wire format.
type Feature uint16

const (
	FeatureAES Feature = iota
	FeaturePMULL
	FeatureSHA1
	FeatureSHA2
	FeatureCRC32
	FeatureAtomics
	FeatureFPHP
	FeatureASIMDHP
	FeatureLRCPC
	FeatureDCPOP
	FeatureSHA3
	FeatureSM3
	FeatureSM4
	FeatureASIMDDP
	FeatureSHA512
	FeatureSVE
	FeatureASIMDFHM
	FeatureDIT
)

// FeatureSet answers which capabilities the target CPU has. Sites gated
// on absent features are left alone.
type FeatureSet interface {
	Has(Feature) bool
}

// FeatureList is a FeatureSet holding an explicit list of present
// capabilities. The empty list has nothing.
type FeatureList []Feature

func (l FeatureList) Has(f Feature) bool {
	for _, have := range l {
		if have == f {
			return true
		}
	}
	return false
}

var hwcaps = []struct {
	feature Feature
	name    string
	present *bool
}{
	{FeatureAES, "aes", &cpu.ARM64.HasAES},
	{FeaturePMULL, "pmull", &cpu.ARM64.HasPMULL},
	{FeatureSHA1, "sha1", &cpu.ARM64.HasSHA1},
	{FeatureSHA2, "sha2", &cpu.ARM64.HasSHA2},
	{FeatureCRC32, "crc32", &cpu.ARM64.HasCRC32},
	{FeatureAtomics, "atomics", &cpu.ARM64.HasATOMICS},
	{FeatureFPHP, "fphp", &cpu.ARM64.HasFPHP},
	{FeatureASIMDHP, "asimdhp", &cpu.ARM64.HasASIMDHP},
	{FeatureLRCPC, "lrcpc", &cpu.ARM64.HasLRCPC},
	{FeatureDCPOP, "dcpop", &cpu.ARM64.HasDCPOP},
	{FeatureSHA3, "sha3", &cpu.ARM64.HasSHA3},
	{FeatureSM3, "sm3", &cpu.ARM64.HasSM3},
	{FeatureSM4, "sm4", &cpu.ARM64.HasSM4},
	{FeatureASIMDDP, "asimddp", &cpu.ARM64.HasASIMDDP},
	{FeatureSHA512, "sha512", &cpu.ARM64.HasSHA512},
	{FeatureSVE, "sve", &cpu.ARM64.HasSVE},
	{FeatureASIMDFHM, "asimdfhm", &cpu.ARM64.HasASIMDFHM},
	{FeatureDIT, "dit", &cpu.ARM64.HasDIT},
}

// DetectFeatures reports the host CPU's capabilities. Off arm64 the list
// is empty, which leaves every gated site unpatched.
func DetectFeatures() FeatureList {
	var l FeatureList
	for _, hw := range hwcaps {
		if *hw.present {
			l = append(l, hw.feature)
		}
	}
	return l
}

// ParseFeature maps a hwcap name like "atomics" or "sve" to its Feature.
func ParseFeature(name string) (Feature, error) {
	for _, hw := range hwcaps {
		if hw.name == name {
			return hw.feature, nil
		}
	}
	return 0, fmt.Errorf("unknown CPU feature %q", name)
}

func (f Feature) String() string {
	for _, hw := range hwcaps {
		if hw.feature == f {
			return hw.name
		}
	}
	return fmt.Sprintf("feature(%d)", uint16(f))
}
