package types

import (
	"encoding/json"
	"time"
)

// DataSource tags where a weather or soil value came from.
type DataSource string

const (
	SourceAPI           DataSource = "api"
	SourceUser          DataSource = "user"
	SourceDefault       DataSource = "default"
	SourceFallback      DataSource = "fallback"
	SourceLocalDatabase DataSource = "local_database"
	SourceStateDefault  DataSource = "state_default"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location identifies the farm a prediction is for.
type Location struct {
	State       string       `json:"state"`
	District    string       `json:"district"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// WeatherObservation is the weather snapshot a prediction was computed with.
// Values are pointers because user-supplied observations may omit any of them;
// provider and fallback observations always set all three.
type WeatherObservation struct {
	Temperature *float64        `json:"temperature"`
	Rainfall    *float64        `json:"rainfall"`
	Humidity    *float64        `json:"humidity"`
	Coordinates Coordinates     `json:"coordinates"`
	DataSource  DataSource      `json:"dataSource"`
	ObservedAt  time.Time       `json:"observedAt"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// SoilComposition is the sand/silt/clay split in percent.
type SoilComposition struct {
	Sand float64 `json:"sand"`
	Silt float64 `json:"silt"`
	Clay float64 `json:"clay"`
}

// SoilProperties holds the chemical profile of a soil class.
type SoilProperties struct {
	PH                     float64 `json:"pH"`
	Nitrogen               float64 `json:"nitrogen"`
	OrganicCarbon          float64 `json:"organicCarbon"`
	CationExchangeCapacity float64 `json:"cationExchangeCapacity"`
	Fertility              string  `json:"fertility"`
}

// SoilAnalysis holds qualitative physical descriptors.
type SoilAnalysis struct {
	Drainage          string `json:"drainage"`
	WaterHolding      string `json:"waterHolding"`
	NutrientRetention string `json:"nutrientRetention"`
}

// SoilLookup records how the soil resolver arrived at its answer.
type SoilLookup struct {
	SearchedState    string `json:"searchedState"`
	SearchedDistrict string `json:"searchedDistrict"`
	FoundInDatabase  bool   `json:"foundInDatabase"`
	MatchTier        string `json:"matchTier"`
}

// SoilProfile is the resolved soil description for a location.
// Composition, Properties and Analysis are nil only for user-supplied soil
// types the reference tables do not know.
type SoilProfile struct {
	SoilType        string           `json:"soilType"`
	DetailedType    string           `json:"detailedType"`
	Composition     *SoilComposition `json:"composition,omitempty"`
	Properties      *SoilProperties  `json:"properties,omitempty"`
	Analysis        *SoilAnalysis    `json:"analysis,omitempty"`
	Recommendations []string         `json:"recommendations"`
	SuitableCrops   []string         `json:"suitableCrops"`
	Coordinates     *Coordinates     `json:"coordinates,omitempty"`
	Location        string           `json:"location"`
	DataSource      DataSource       `json:"dataSource"`
	Lookup          SoilLookup       `json:"lookup"`
}

// ModelInput is the exact payload posted to the external yield model.
// Every value is a string; the model rejects numeric JSON.
type ModelInput struct {
	Year          string `json:"Year"`
	State         string `json:"State"`
	District      string `json:"District"`
	AreaThousandH string `json:"Area_1000_ha"`
	Crop          string `json:"Crop"`
	AvgRainfallMM string `json:"Avg_Rainfall_mm"`
	AvgTempC      string `json:"Avg_Temp_C"`
	SoilType      string `json:"Soil_Type"`
}

// ModelErrorDetails captures why the external model could not be used.
type ModelErrorDetails struct {
	Message      string `json:"message"`
	APIURL       string `json:"apiUrl"`
	StatusCode   int    `json:"statusCode,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`
}

// DataValidations pairs every normalized field with its original value.
type DataValidations struct {
	OriginalCrop       string `json:"originalCrop"`
	NormalizedCrop     string `json:"normalizedCrop"`
	OriginalState      string `json:"originalState"`
	NormalizedState    string `json:"normalizedState"`
	OriginalSoilType   string `json:"originalSoilType"`
	NormalizedSoilType string `json:"normalizedSoilType"`
}

// ProcessingMetadata records request-level timing and normalization.
type ProcessingMetadata struct {
	RequestID           string          `json:"requestId"`
	StartedAt           time.Time       `json:"startedAt"`
	ModelCallDurationMs int64           `json:"modelCallDurationMs"`
	DataValidations     DataValidations `json:"dataValidations"`
}

// SoilSearchMetadata describes the soil lookup for display.
type SoilSearchMetadata struct {
	RequestedLocation string    `json:"requestedLocation"`
	ActualSoilType    string    `json:"actualSoilType"`
	DataAccuracy      string    `json:"dataAccuracy"`
	Timestamp         time.Time `json:"timestamp"`
}

// WeatherMetadata describes the weather lookup for display.
type WeatherMetadata struct {
	RequestedLocation string    `json:"requestedLocation"`
	RequestedDate     time.Time `json:"requestedDate"`
	DataTimestamp     time.Time `json:"dataTimestamp"`
	APICallSuccess    bool      `json:"apiCallSuccess"`
}

// Provenance is everything needed to explain how a prediction was produced.
type Provenance struct {
	Processing      ProcessingMetadata `json:"processingMetadata"`
	SoilSearch      SoilSearchMetadata `json:"soilSearch"`
	Weather         WeatherMetadata    `json:"weather"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// YieldPrediction is the persisted, immutable record of one prediction.
type YieldPrediction struct {
	ID                      string             `json:"id"`
	UserID                  string             `json:"userId"`
	CropType                string             `json:"cropType"`
	SoilType                string             `json:"soilType"`
	SoilProfile             SoilProfile        `json:"soilProfile"`
	LandArea                float64            `json:"landArea"`
	Location                Location           `json:"location"`
	PlantingDate            time.Time          `json:"plantingDate"`
	Weather                 WeatherObservation `json:"weather"`
	ExternalModelInput      ModelInput         `json:"externalModelInput"`
	ExternalModelResponse   json.RawMessage    `json:"externalModelResponse"`
	ErrorDetails            *ModelErrorDetails `json:"errorDetails"`
	PredictedYieldKg        float64            `json:"predictedYieldKg"`
	YieldPerHectareKg       float64            `json:"yieldPerHectareKg"`
	ConfidenceScore         float64            `json:"confidenceScore"`
	UsedExternalModel       bool               `json:"usedExternalModel"`
	FetchedFromExternalAPIs bool               `json:"fetchedFromExternalAPIs"`
	ModelVersion            string             `json:"modelVersion"`
	Provenance              Provenance         `json:"provenance"`
	CreatedAt               time.Time          `json:"createdAt"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// ModelResponse is the decoded reply of the external yield model.
type ModelResponse struct {
	YieldKgHa          *float64        `json:"yield_kg_ha"`
	ConfidenceInterval []float64       `json:"confidence_interval_95,omitempty"`
	ModelVersion       string          `json:"model_version,omitempty"`
	Recommendations    []string        `json:"recommendations,omitempty"`
	Raw                json.RawMessage `json:"-"`
}
