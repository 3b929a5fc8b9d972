package prediction

import (
	"strings"

	"cropyield/internal/reference"
	"cropyield/internal/types"
)

// Normalized holds the closed-vocabulary values sent to the yield model next
// to the raw values they were derived from.
type Normalized struct {
	Crop     string
	State    string
	SoilType string

	// MappedCrop is the synonym-mapped, upper-cased crop before the
	// closed-set default is applied. The fallback estimator prices it.
	MappedCrop string

	OriginalCrop     string
	OriginalState    string
	OriginalSoilType string
}

// Validations converts n into its provenance form.
func (n Normalized) Validations() types.DataValidations {
	return types.DataValidations{
		OriginalCrop:       n.OriginalCrop,
		NormalizedCrop:     n.Crop,
		OriginalState:      n.OriginalState,
		NormalizedState:    n.State,
		OriginalSoilType:   n.OriginalSoilType,
		NormalizedSoilType: n.SoilType,
	}
}

// Normalizer maps free-text values onto the vocabularies the model accepts.
// Unknown values are replaced with fixed defaults, never rejected.
type Normalizer struct {
	tables *reference.Tables
}

// NewNormalizer creates a Normalizer backed by the given tables.
func NewNormalizer(tables *reference.Tables) *Normalizer {
	return &Normalizer{tables: tables}
}

// Normalize returns crop, state and soilType folded onto their closed sets.
func (n *Normalizer) Normalize(crop, state, soilType string) Normalized {
	out := Normalized{
		OriginalCrop:     crop,
		OriginalState:    state,
		OriginalSoilType: soilType,
	}

	out.MappedCrop = n.mapCrop(crop)
	out.Crop = out.MappedCrop
	if !reference.IsValidCrop(out.Crop) {
		out.Crop = reference.DefaultCrop
	}

	if s, ok := reference.CanonicalState(state); ok {
		out.State = s
	} else {
		out.State = reference.DefaultState
	}

	if s, ok := reference.CanonicalSoilType(soilType); ok {
		out.SoilType = s
	} else {
		out.SoilType = reference.DefaultSoilType
	}

	return out
}

// mapCrop resolves a synonym, else upper-cases the input.
func (n *Normalizer) mapCrop(crop string) string {
	if n.tables != nil {
		if c, ok := n.tables.CropSynonym(crop); ok {
			return c
		}
	}
	return strings.ToUpper(strings.TrimSpace(crop))
}
