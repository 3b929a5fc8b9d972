package prediction

import (
	"fmt"
	"log/slog"
	"strings"

	"cropyield/internal/reference"
	"cropyield/internal/types"
)

// Match tiers recorded in SoilLookup.MatchTier.
const (
	TierExact         = "exact"
	TierFuzzy         = "fuzzy"
	TierStateDefault  = "state_default"
	TierGlobalDefault = "global_default"
	TierFallback      = "fallback"
	TierUser          = "user"
)

// UnknownSoilType is recorded when a user omits the soil type.
const UnknownSoilType = "Unknown"

const soilFallbackNote = "Unable to fetch soil data from local database"

// SoilResolver maps a location to a soil profile using the reference tables.
// Resolve never fails; the DataSource of the result says which tier answered.
type SoilResolver struct {
	tables *reference.Tables
	logger *slog.Logger
}

// NewSoilResolver creates a SoilResolver. A nil logger uses slog.Default().
func NewSoilResolver(tables *reference.Tables, logger *slog.Logger) *SoilResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SoilResolver{tables: tables, logger: logger}
}

// Resolve looks the soil type up by exact match, then case-insensitive or
// substring match, then the state default, and expands it into a profile.
func (r *SoilResolver) Resolve(state, district string, coords *types.Coordinates) (profile types.SoilProfile) {
	state = strings.TrimSpace(state)
	district = strings.TrimSpace(district)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("soil lookup panicked",
				"state", state,
				"district", district,
				"panic", fmt.Sprint(rec),
			)
			profile = fallbackSoilProfile(state, district, coords)
		}
	}()

	if r.tables == nil {
		r.logger.Warn("soil reference tables not loaded", "state", state, "district", district)
		return fallbackSoilProfile(state, district, coords)
	}

	row, tier, found := r.lookup(state, district)

	soilType := row.SoilType
	rec, ok := r.tables.Soil(soilType)
	if !ok {
		rec, ok = r.tables.Soil(reference.GlobalDefaultSoil)
		if !ok {
			return fallbackSoilProfile(state, district, coords)
		}
	}

	source := types.SourceStateDefault
	if found {
		source = types.SourceLocalDatabase
	}

	return types.SoilProfile{
		SoilType:        soilType,
		DetailedType:    row.DetailedType,
		Composition:     &rec.Composition,
		Properties:      &rec.Properties,
		Analysis:        &rec.Analysis,
		Recommendations: rec.Recommendations,
		SuitableCrops:   rec.SuitableCrops,
		Coordinates:     coords,
		Location:        locationLabel(state, district),
		DataSource:      source,
		Lookup: types.SoilLookup{
			SearchedState:    state,
			SearchedDistrict: district,
			FoundInDatabase:  found,
			MatchTier:        tier,
		},
	}
}

func (r *SoilResolver) lookup(state, district string) (reference.DistrictSoil, string, bool) {
	for _, row := range r.tables.Districts(state) {
		if row.District == district {
			return row, TierExact, true
		}
	}

	if canonical, ok := r.tables.FoldState(state); ok {
		if row, ok := matchDistrict(r.tables.Districts(canonical), district); ok {
			return row, TierFuzzy, true
		}
	}

	if soil, ok := reference.StateDefaultSoil(state); ok {
		return reference.DistrictSoil{SoilType: soil, DetailedType: soil}, TierStateDefault, false
	}
	return reference.DistrictSoil{
		SoilType:     reference.GlobalDefaultSoil,
		DetailedType: reference.GlobalDefaultSoil,
	}, TierGlobalDefault, false
}

// matchDistrict finds district among rows case-insensitively. Exact
// case-folded equality wins over containment; containment is checked in both
// directions so "24 Parganas" matches "North 24 Parganas" and vice versa.
// Rows are scanned in table order.
func matchDistrict(rows []reference.DistrictSoil, district string) (reference.DistrictSoil, bool) {
	want := strings.ToLower(strings.TrimSpace(district))
	if want == "" {
		return reference.DistrictSoil{}, false
	}
	for _, row := range rows {
		if strings.ToLower(row.District) == want {
			return row, true
		}
	}
	for _, row := range rows {
		have := strings.ToLower(row.District)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return row, true
		}
	}
	return reference.DistrictSoil{}, false
}

// FromUser builds a profile from a user-declared soil type. Properties are
// attached when the reference tables know the type.
func (r *SoilResolver) FromUser(soilType, state, district string, coords *types.Coordinates) types.SoilProfile {
	soilType = strings.TrimSpace(soilType)
	profile := types.SoilProfile{
		SoilType:        soilType,
		DetailedType:    soilType,
		Recommendations: []string{},
		SuitableCrops:   []string{},
		Coordinates:     coords,
		Location:        locationLabel(state, district),
		DataSource:      types.SourceUser,
		Lookup: types.SoilLookup{
			SearchedState:    state,
			SearchedDistrict: district,
			MatchTier:        TierUser,
		},
	}

	if soilType == "" {
		profile.SoilType = UnknownSoilType
		profile.DetailedType = UnknownSoilType
		profile.DataSource = types.SourceDefault
		return profile
	}

	if r.tables == nil {
		return profile
	}
	canonical, ok := reference.CanonicalSoilType(soilType)
	if !ok {
		return profile
	}
	if rec, ok := r.tables.Soil(canonical); ok {
		profile.Composition = &rec.Composition
		profile.Properties = &rec.Properties
		profile.Analysis = &rec.Analysis
		profile.Recommendations = rec.Recommendations
		profile.SuitableCrops = rec.SuitableCrops
	}
	return profile
}

func fallbackSoilProfile(state, district string, coords *types.Coordinates) types.SoilProfile {
	return types.SoilProfile{
		SoilType:     reference.GlobalDefaultSoil,
		DetailedType: reference.GlobalDefaultSoil,
		Composition:  &types.SoilComposition{Sand: 40, Silt: 40, Clay: 20},
		Properties: &types.SoilProperties{
			PH:                     6.5,
			Nitrogen:               280,
			OrganicCarbon:          0.75,
			CationExchangeCapacity: 15,
			Fertility:              "Medium",
		},
		Analysis: &types.SoilAnalysis{
			Drainage:          "Good",
			WaterHolding:      "Medium",
			NutrientRetention: "Good",
		},
		Recommendations: []string{
			soilFallbackNote,
			"Using general loamy soil properties",
			"Get a soil test done for accurate recommendations",
		},
		SuitableCrops: []string{"Wheat", "Rice", "Maize", "Vegetables"},
		Coordinates:   coords,
		Location:      locationLabel(state, district),
		DataSource:    types.SourceFallback,
		Lookup: types.SoilLookup{
			SearchedState:    state,
			SearchedDistrict: district,
			MatchTier:        TierFallback,
		},
	}
}

func locationLabel(state, district string) string {
	return district + ", " + state
}
