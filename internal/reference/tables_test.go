package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedTables(t *testing.T) {
	tables, err := Load()
	require.NoError(t, err)

	rows := tables.Districts("Gujarat")
	require.NotEmpty(t, rows)
	assert.Equal(t, "Ahmedabad", rows[0].District)
	assert.Equal(t, "Sandy", rows[0].SoilType)

	for _, soil := range ValidSoilTypes() {
		rec, ok := tables.Soil(soil)
		require.True(t, ok, "soil %s has no property record", soil)
		total := rec.Composition.Sand + rec.Composition.Silt + rec.Composition.Clay
		assert.InDelta(t, 100, total, 1, "composition of %s", soil)
		assert.NotEmpty(t, rec.Recommendations, "recommendations of %s", soil)
		assert.NotEmpty(t, rec.SuitableCrops, "suitable crops of %s", soil)
	}
}

func TestLoad_MumbaiIsNotInTable(t *testing.T) {
	tables, err := Default()
	require.NoError(t, err)

	for _, row := range tables.Districts("Maharashtra") {
		assert.NotEqual(t, "Mumbai", row.District)
	}
}

func TestDefault_ReturnsSameInstance(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestTables_SoilReturnsCopy(t *testing.T) {
	tables, err := Load()
	require.NoError(t, err)

	rec, ok := tables.Soil("Black")
	require.True(t, ok)
	rec.Recommendations[0] = "mutated"

	again, _ := tables.Soil("Black")
	assert.NotEqual(t, "mutated", again.Recommendations[0])
}

func TestTables_FoldState(t *testing.T) {
	tables, err := Load()
	require.NoError(t, err)

	name, ok := tables.FoldState("west BENGAL")
	assert.True(t, ok)
	assert.Equal(t, "West Bengal", name)

	_, ok = tables.FoldState("Atlantis")
	assert.False(t, ok)
}

func TestTables_CropSynonym(t *testing.T) {
	tables, err := Load()
	require.NoError(t, err)

	tests := map[string]string{
		"corn":       "MAIZE",
		"Corn":       "MAIZE",
		" Paddy ":    "RICE",
		"Sugar Cane": "SUGARCANE",
		"peanut":     "GROUNDNUT",
	}
	for in, want := range tests {
		got, ok := tables.CropSynonym(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := tables.CropSynonym("barley")
	assert.False(t, ok)
}

func TestParse_RejectsUnknownSoilClass(t *testing.T) {
	districts := []byte("state,district,soil_type,detailed_type\nKerala,Idukki,Peat,Peat\n")
	soils := []byte("soil_type,sand,silt,clay,ph,nitrogen,organic_carbon,cec,fertility,drainage,water_holding,nutrient_retention,recommendations,suitable_crops\n")
	synonyms := []byte("alias,crop\n")

	_, err := Parse(districts, soils, synonyms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Peat")
}

func TestParse_RejectsUnsupportedSynonymTarget(t *testing.T) {
	districts := []byte("state,district,soil_type,detailed_type\n")
	soils := []byte("soil_type,sand,silt,clay,ph,nitrogen,organic_carbon,cec,fertility,drainage,water_holding,nutrient_retention,recommendations,suitable_crops\n")
	synonyms := []byte("alias,crop\njowar,SORGHUM\n")

	_, err := Parse(districts, soils, synonyms)
	require.Error(t, err)
}

func TestParse_DetailedTypeDefaultsToClass(t *testing.T) {
	districts := []byte("state,district,soil_type,detailed_type\nBihar,Nalanda,alluvial,\n")
	soils := []byte("soil_type,sand,silt,clay,ph,nitrogen,organic_carbon,cec,fertility,drainage,water_holding,nutrient_retention,recommendations,suitable_crops\n")
	synonyms := []byte("alias,crop\n")

	tables, err := Parse(districts, soils, synonyms)
	require.NoError(t, err)

	rows := tables.Districts("Bihar")
	require.Len(t, rows, 1)
	assert.Equal(t, "Alluvial", rows[0].SoilType)
	assert.Equal(t, "Alluvial", rows[0].DetailedType)
}

func TestVocabulary(t *testing.T) {
	assert.True(t, IsValidCrop("WHEAT"))
	assert.False(t, IsValidCrop("wheat"))

	state, ok := CanonicalState("madhya pradesh")
	assert.True(t, ok)
	assert.Equal(t, "Madhya Pradesh", state)

	_, ok = CanonicalState("Maharashtra")
	assert.False(t, ok)

	soil, ok := CanonicalSoilType("red-yellow")
	assert.True(t, ok)
	assert.Equal(t, "Red-Yellow", soil)

	def, ok := StateDefaultSoil(" Madhya Pradesh ")
	assert.True(t, ok)
	assert.Equal(t, "Black", def)

	_, ok = StateDefaultSoil("Atlantis")
	assert.False(t, ok)

	assert.Len(t, ValidCrops(), 5)
	assert.Len(t, ValidStates(), 8)
	assert.Len(t, ValidSoilTypes(), 6)
}
