package reference

import "strings"

// Closed vocabularies accepted by the external yield model, and the values
// substituted when an input falls outside them.
const (
	DefaultCrop     = "RICE"
	DefaultState    = "Gujarat"
	DefaultSoilType = "Sandy"

	// GlobalDefaultSoil is used when neither district nor state is known.
	GlobalDefaultSoil = "Loamy"
)

var validCrops = []string{"RICE", "GROUNDNUT", "WHEAT", "MAIZE", "SUGARCANE"}

var validStates = []string{
	"Chhattisgarh", "Madhya Pradesh", "West Bengal", "Bihar",
	"Jharkhand", "Orissa", "Gujarat", "Punjab",
}

var validSoilTypes = []string{"Sandy", "Alluvial", "Black", "Red-Yellow", "Red", "Loamy"}

// stateDefaultSoil is the fallback soil class per state when the district is
// not in the district table.
var stateDefaultSoil = map[string]string{
	"gujarat":          "Sandy",
	"maharashtra":      "Loamy",
	"madhya pradesh":   "Black",
	"uttar pradesh":    "Alluvial",
	"west bengal":      "Alluvial",
	"bihar":            "Alluvial",
	"jharkhand":        "Red",
	"orissa":           "Red",
	"chhattisgarh":     "Red-Yellow",
	"karnataka":        "Loamy",
	"tamil nadu":       "Loamy",
	"andhra pradesh":   "Loamy",
	"telangana":        "Loamy",
	"kerala":           "Loamy",
	"punjab":           "Loamy",
	"haryana":          "Loamy",
	"rajasthan":        "Loamy",
	"himachal pradesh": "Loamy",
	"uttarakhand":      "Loamy",
	"assam":            "Loamy",
}

// ValidCrops returns the supported crop codes.
func ValidCrops() []string { return append([]string(nil), validCrops...) }

// ValidStates returns the states the yield model was trained on.
func ValidStates() []string { return append([]string(nil), validStates...) }

// ValidSoilTypes returns the soil classes the yield model accepts.
func ValidSoilTypes() []string { return append([]string(nil), validSoilTypes...) }

// IsValidCrop reports whether crop is an exact supported crop code.
func IsValidCrop(crop string) bool {
	for _, c := range validCrops {
		if c == crop {
			return true
		}
	}
	return false
}

// CanonicalState returns the model's spelling of state, matched case-insensitively.
func CanonicalState(state string) (string, bool) {
	return fold(validStates, state)
}

// CanonicalSoilType returns the model's spelling of soilType, matched
// case-insensitively.
func CanonicalSoilType(soilType string) (string, bool) {
	return fold(validSoilTypes, soilType)
}

// StateDefaultSoil returns the default soil class for a state.
func StateDefaultSoil(state string) (string, bool) {
	soil, ok := stateDefaultSoil[strings.ToLower(strings.TrimSpace(state))]
	return soil, ok
}

func fold(set []string, v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return s, true
		}
	}
	return "", false
}
