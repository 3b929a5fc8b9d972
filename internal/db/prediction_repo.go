package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cropyield/internal/types"
)

// PredictionRepository provides data access for the predictions table.
// Nested records are stored as JSONB; predictions are insert-only.
type PredictionRepository struct {
	db DBTX
}

// NewPredictionRepository creates a new PredictionRepository backed by the
// given database connection (pool or transaction).
func NewPredictionRepository(db DBTX) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// predictionColumns is shared by every SELECT so scanPrediction stays in step.
const predictionColumns = `id, user_id, crop_type, soil_type, soil_profile, land_area,
	location, planting_date, weather, external_model_input, external_model_response,
	error_details, predicted_yield_kg, yield_per_hectare_kg, confidence_score,
	used_external_model, fetched_from_external_apis, model_version, provenance, created_at`

// Create inserts p. The row is never updated afterwards.
func (r *PredictionRepository) Create(ctx context.Context, p *types.YieldPrediction) error {
	docs, err := marshalDocuments(p)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode prediction", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO predictions (`+predictionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		p.ID,
		p.UserID,
		p.CropType,
		p.SoilType,
		docs.soilProfile,
		p.LandArea,
		docs.location,
		p.PlantingDate,
		docs.weather,
		docs.modelInput,
		docs.modelResponse,
		docs.errorDetails,
		p.PredictedYieldKg,
		p.YieldPerHectareKg,
		p.ConfidenceScore,
		p.UsedExternalModel,
		p.FetchedFromExternalAPIs,
		p.ModelVersion,
		docs.provenance,
		p.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create prediction", err)
	}
	return nil
}

// GetByID retrieves a prediction by id regardless of owner; ownership is
// enforced by the caller.
func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*types.YieldPrediction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = $1`,
		id,
	)

	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPrediction, "prediction not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve prediction", err)
	}
	return p, nil
}

// ListByUser returns every prediction owned by userID, newest first.
func (r *PredictionRepository) ListByUser(ctx context.Context, userID string) ([]*types.YieldPrediction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	defer rows.Close()

	var out []*types.YieldPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan prediction", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate predictions", err)
	}
	return out, nil
}

// documents holds the JSONB column payloads of one prediction. The two
// nullable columns stay nil when absent.
type documents struct {
	soilProfile   []byte
	location      []byte
	weather       []byte
	modelInput    []byte
	modelResponse []byte
	errorDetails  []byte
	provenance    []byte
}

func marshalDocuments(p *types.YieldPrediction) (documents, error) {
	var d documents
	var err error
	if d.soilProfile, err = json.Marshal(p.SoilProfile); err != nil {
		return d, fmt.Errorf("soil_profile: %w", err)
	}
	if d.location, err = json.Marshal(p.Location); err != nil {
		return d, fmt.Errorf("location: %w", err)
	}
	if d.weather, err = json.Marshal(p.Weather); err != nil {
		return d, fmt.Errorf("weather: %w", err)
	}
	if d.modelInput, err = json.Marshal(p.ExternalModelInput); err != nil {
		return d, fmt.Errorf("external_model_input: %w", err)
	}
	if len(p.ExternalModelResponse) > 0 {
		d.modelResponse = []byte(p.ExternalModelResponse)
	}
	if p.ErrorDetails != nil {
		if d.errorDetails, err = json.Marshal(p.ErrorDetails); err != nil {
			return d, fmt.Errorf("error_details: %w", err)
		}
	}
	if d.provenance, err = json.Marshal(p.Provenance); err != nil {
		return d, fmt.Errorf("provenance: %w", err)
	}
	return d, nil
}

// scanPrediction scans a single row in predictionColumns order.
func scanPrediction(row pgx.Row) (*types.YieldPrediction, error) {
	var p types.YieldPrediction
	var d documents
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.CropType,
		&p.SoilType,
		&d.soilProfile,
		&p.LandArea,
		&d.location,
		&p.PlantingDate,
		&d.weather,
		&d.modelInput,
		&d.modelResponse,
		&d.errorDetails,
		&p.PredictedYieldKg,
		&p.YieldPerHectareKg,
		&p.ConfidenceScore,
		&p.UsedExternalModel,
		&p.FetchedFromExternalAPIs,
		&p.ModelVersion,
		&d.provenance,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := d.decodeInto(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d documents) decodeInto(p *types.YieldPrediction) error {
	targets := []struct {
		name string
		data []byte
		dest any
	}{
		{"soil_profile", d.soilProfile, &p.SoilProfile},
		{"location", d.location, &p.Location},
		{"weather", d.weather, &p.Weather},
		{"external_model_input", d.modelInput, &p.ExternalModelInput},
		{"provenance", d.provenance, &p.Provenance},
	}
	for _, t := range targets {
		if len(t.data) == 0 {
			continue
		}
		if err := json.Unmarshal(t.data, t.dest); err != nil {
			return fmt.Errorf("decoding %s: %w", t.name, err)
		}
	}
	if len(d.modelResponse) > 0 {
		p.ExternalModelResponse = json.RawMessage(d.modelResponse)
	}
	if len(d.errorDetails) > 0 {
		var details types.ModelErrorDetails
		if err := json.Unmarshal(d.errorDetails, &details); err != nil {
			return fmt.Errorf("decoding error_details: %w", err)
		}
		p.ErrorDetails = &details
	}
	return nil
}
