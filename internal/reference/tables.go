// Package reference holds the static lookup tables used by soil resolution and
// input normalization: state→district→soil type, soil type→properties, crop
// synonyms, and the closed vocabularies the yield model accepts.
//
// Tables are parsed once from embedded CSV and never mutated afterwards, so a
// *Tables is safe for concurrent use without locking.
package reference

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"

	"cropyield/internal/types"
)

//go:embed data/*.csv
var dataFS embed.FS

// pipeList is a CSV cell holding a "|"-separated list.
type pipeList []string

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (p *pipeList) UnmarshalCSV(s string) error {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*p = out
	return nil
}

type districtRow struct {
	State        string `csv:"state"`
	District     string `csv:"district"`
	SoilType     string `csv:"soil_type"`
	DetailedType string `csv:"detailed_type"`
}

type soilRow struct {
	SoilType          string   `csv:"soil_type"`
	Sand              float64  `csv:"sand"`
	Silt              float64  `csv:"silt"`
	Clay              float64  `csv:"clay"`
	PH                float64  `csv:"ph"`
	Nitrogen          float64  `csv:"nitrogen"`
	OrganicCarbon     float64  `csv:"organic_carbon"`
	CEC               float64  `csv:"cec"`
	Fertility         string   `csv:"fertility"`
	Drainage          string   `csv:"drainage"`
	WaterHolding      string   `csv:"water_holding"`
	NutrientRetention string   `csv:"nutrient_retention"`
	Recommendations   pipeList `csv:"recommendations"`
	SuitableCrops     pipeList `csv:"suitable_crops"`
}

type synonymRow struct {
	Alias string `csv:"alias"`
	Crop  string `csv:"crop"`
}

// DistrictSoil is one row of the state→district→soil table.
type DistrictSoil struct {
	District     string
	SoilType     string
	DetailedType string
}

// SoilRecord is the full property record of a soil class.
type SoilRecord struct {
	Composition     types.SoilComposition
	Properties      types.SoilProperties
	Analysis        types.SoilAnalysis
	Recommendations []string
	SuitableCrops   []string
}

// Tables is the immutable set of reference lookups.
type Tables struct {
	// districts preserves file order per state so fuzzy matching is
	// deterministic.
	districts map[string][]DistrictSoil
	// stateNames maps a lower-cased state to its spelling in districts.
	stateNames   map[string]string
	soils        map[string]SoilRecord
	cropSynonyms map[string]string
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Default returns the tables parsed from the embedded data files. Parsing
// happens on first use; later calls return the same instance.
func Default() (*Tables, error) {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = Load()
	})
	return defaultTables, defaultErr
}

// Load parses the embedded data files into a new Tables.
func Load() (*Tables, error) {
	districts, err := dataFS.ReadFile("data/state_district_soil.csv")
	if err != nil {
		return nil, fmt.Errorf("reference: reading district table: %w", err)
	}
	soils, err := dataFS.ReadFile("data/soil_properties.csv")
	if err != nil {
		return nil, fmt.Errorf("reference: reading soil table: %w", err)
	}
	synonyms, err := dataFS.ReadFile("data/crop_synonyms.csv")
	if err != nil {
		return nil, fmt.Errorf("reference: reading synonym table: %w", err)
	}
	return Parse(districts, soils, synonyms)
}

// Parse builds Tables from raw CSV content. Every district soil type and
// synonym target must belong to the closed vocabularies.
func Parse(districtCSV, soilCSV, synonymCSV []byte) (*Tables, error) {
	var districtRows []*districtRow
	if err := gocsv.UnmarshalBytes(districtCSV, &districtRows); err != nil {
		return nil, fmt.Errorf("reference: parsing district table: %w", err)
	}
	var soilRows []*soilRow
	if err := gocsv.UnmarshalBytes(soilCSV, &soilRows); err != nil {
		return nil, fmt.Errorf("reference: parsing soil table: %w", err)
	}
	var synonymRows []*synonymRow
	if err := gocsv.UnmarshalBytes(synonymCSV, &synonymRows); err != nil {
		return nil, fmt.Errorf("reference: parsing synonym table: %w", err)
	}

	t := &Tables{
		districts:    make(map[string][]DistrictSoil),
		stateNames:   make(map[string]string),
		soils:        make(map[string]SoilRecord, len(soilRows)),
		cropSynonyms: make(map[string]string, len(synonymRows)),
	}

	for i, r := range districtRows {
		state := strings.TrimSpace(r.State)
		district := strings.TrimSpace(r.District)
		if state == "" || district == "" {
			return nil, fmt.Errorf("reference: district row %d: state and district are required", i+2)
		}
		soilType, ok := CanonicalSoilType(r.SoilType)
		if !ok {
			return nil, fmt.Errorf("reference: district row %d: unknown soil type %q", i+2, r.SoilType)
		}
		detailed := strings.TrimSpace(r.DetailedType)
		if detailed == "" {
			detailed = soilType
		}
		t.districts[state] = append(t.districts[state], DistrictSoil{
			District:     district,
			SoilType:     soilType,
			DetailedType: detailed,
		})
		t.stateNames[strings.ToLower(state)] = state
	}

	for _, r := range soilRows {
		t.soils[strings.TrimSpace(r.SoilType)] = SoilRecord{
			Composition: types.SoilComposition{Sand: r.Sand, Silt: r.Silt, Clay: r.Clay},
			Properties: types.SoilProperties{
				PH:                     r.PH,
				Nitrogen:               r.Nitrogen,
				OrganicCarbon:          r.OrganicCarbon,
				CationExchangeCapacity: r.CEC,
				Fertility:              r.Fertility,
			},
			Analysis: types.SoilAnalysis{
				Drainage:          r.Drainage,
				WaterHolding:      r.WaterHolding,
				NutrientRetention: r.NutrientRetention,
			},
			Recommendations: r.Recommendations,
			SuitableCrops:   r.SuitableCrops,
		}
	}

	for i, r := range synonymRows {
		if !IsValidCrop(r.Crop) {
			return nil, fmt.Errorf("reference: synonym row %d: %q is not a supported crop", i+2, r.Crop)
		}
		t.cropSynonyms[strings.ToLower(strings.TrimSpace(r.Alias))] = r.Crop
	}

	return t, nil
}

// Districts returns the rows for a state spelled exactly as in the table.
func (t *Tables) Districts(state string) []DistrictSoil {
	return t.districts[state]
}

// FoldState returns the table's spelling of state, compared case-insensitively.
func (t *Tables) FoldState(state string) (string, bool) {
	name, ok := t.stateNames[strings.ToLower(state)]
	return name, ok
}

// Soil returns a copy of the property record for soilType.
func (t *Tables) Soil(soilType string) (SoilRecord, bool) {
	rec, ok := t.soils[soilType]
	if !ok {
		return SoilRecord{}, false
	}
	rec.Recommendations = append([]string(nil), rec.Recommendations...)
	rec.SuitableCrops = append([]string(nil), rec.SuitableCrops...)
	return rec, true
}

// CropSynonym maps a free-text crop name to a supported crop.
func (t *Tables) CropSynonym(name string) (string, bool) {
	crop, ok := t.cropSynonyms[strings.ToLower(strings.TrimSpace(name))]
	return crop, ok
}
