package wasm

import (
	"fmt"
	"math/bits"
	"strings"
)

// Features is a bit set of WebAssembly proposals. Each bit gates the encodings and opcodes the proposal introduces.
type Features uint64

const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSignExtension
	FeatureSaturatingFloatToInt
	FeatureMultiValue
	FeatureBulkMemory
	FeatureReferenceTypes
	FeatureSIMD
	FeatureTailCall
	FeatureThreads
	FeatureMultiMemory
	FeatureMemory64
	FeatureNameSection
)

// DefaultFeatures is the WebAssembly 2.0 feature set plus name section parsing.
const DefaultFeatures = FeatureMutableGlobal | FeatureSignExtension | FeatureSaturatingFloatToInt |
	FeatureMultiValue | FeatureBulkMemory | FeatureReferenceTypes | FeatureSIMD | FeatureNameSection

// AllFeatures enables every supported proposal.
const AllFeatures = DefaultFeatures | FeatureTailCall | FeatureThreads | FeatureMultiMemory | FeatureMemory64

var featureNames = []struct {
	feature Features
	name    string
}{
	{FeatureMutableGlobal, "mutable-globals"},
	{FeatureSignExtension, "sign-extension"},
	{FeatureSaturatingFloatToInt, "saturating-float-to-int"},
	{FeatureMultiValue, "multi-value"},
	{FeatureBulkMemory, "bulk-memory"},
	{FeatureReferenceTypes, "reference-types"},
	{FeatureSIMD, "simd"},
	{FeatureTailCall, "tail-call"},
	{FeatureThreads, "threads"},
	{FeatureMultiMemory, "multi-memory"},
	{FeatureMemory64, "memory64"},
	{FeatureNameSection, "name-section"},
}

// IsEnabled returns true if every feature in f is enabled.
func (f Features) IsEnabled(feature Features) bool {
	return f&feature == feature
}

// SetEnabled enables or disables the given features.
func (f Features) SetEnabled(feature Features, val bool) Features {
	if val {
		return f | feature
	}
	return f &^ feature
}

// RequireEnabled returns an *UnsupportedFeatureError describing what if feature is disabled.
func (f Features) RequireEnabled(feature Features, what string) error {
	if f.IsEnabled(feature) {
		return nil
	}
	return &UnsupportedFeatureError{Feature: feature &^ f, What: what}
}

func (f Features) String() string {
	var names []string
	for _, n := range featureNames {
		if f&n.feature != 0 {
			names = append(names, n.name)
		}
	}
	if rest := f &^ AllFeatures; rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint64(rest)))
	}
	return strings.Join(names, ",")
}

// Count returns the number of enabled features.
func (f Features) Count() int {
	return bits.OnesCount64(uint64(f))
}

// Set applies a comma-separated list of feature names to f. A name prefixed with '-' disables the feature; "all"
// and "none" enable or disable everything. Set and Type allow Features to be used as a command-line flag.
func (f *Features) Set(s string) error {
	v := *f
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		enable := true
		if strings.HasPrefix(name, "-") {
			enable, name = false, name[1:]
		}

		switch name {
		case "all":
			v = v.SetEnabled(AllFeatures, enable)
			continue
		case "none":
			v = v.SetEnabled(AllFeatures, !enable)
			continue
		}

		feature, ok := FeatureByName(name)
		if !ok {
			return fmt.Errorf("unknown feature %q", name)
		}
		v = v.SetEnabled(feature, enable)
	}
	*f = v
	return nil
}

func (f *Features) Type() string {
	return "features"
}

// FeatureByName returns the feature with the given name.
func FeatureByName(name string) (Features, bool) {
	for _, n := range featureNames {
		if n.name == name {
			return n.feature, true
		}
	}
	return 0, false
}
