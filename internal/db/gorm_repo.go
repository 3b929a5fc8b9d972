package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cropyield/internal/types"
)

// predictionRecord is the gorm row shape of a YieldPrediction. Nested records
// go to JSON text columns through their sql.Scanner and driver.Valuer
// methods; ErrorDetails uses the gorm json serializer since it may be nil.
type predictionRecord struct {
	ID                      string                   `gorm:"primaryKey;size:36"`
	UserID                  string                   `gorm:"index:idx_predictions_user_created,priority:1;not null"`
	CropType                string                   `gorm:"not null"`
	SoilType                string                   `gorm:"not null"`
	SoilProfile             types.SoilProfile        `gorm:"type:text"`
	LandArea                float64                  `gorm:"not null"`
	Location                types.Location           `gorm:"type:text"`
	PlantingDate            time.Time                `gorm:"not null"`
	Weather                 types.WeatherObservation `gorm:"type:text"`
	ExternalModelInput      types.ModelInput         `gorm:"type:text"`
	ExternalModelResponse   []byte
	ErrorDetails            *types.ModelErrorDetails `gorm:"serializer:json;type:text"`
	PredictedYieldKg        float64
	YieldPerHectareKg       float64
	ConfidenceScore         float64
	UsedExternalModel       bool
	FetchedFromExternalAPIs bool
	ModelVersion            string
	Provenance              types.Provenance `gorm:"type:text"`
	CreatedAt               time.Time        `gorm:"index:idx_predictions_user_created,priority:2"`
}

func (predictionRecord) TableName() string { return "predictions" }

// OpenSQLite opens (or creates) the SQLite database at path and migrates the
// predictions table. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string, autoMigrate bool) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if autoMigrate {
		if err := gdb.AutoMigrate(&predictionRecord{}); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	return gdb, nil
}

// GormPredictionRepository stores predictions through gorm. It backs local
// development with DB_DRIVER=sqlite.
type GormPredictionRepository struct {
	db *gorm.DB
}

// NewGormPredictionRepository creates a repository over gdb.
func NewGormPredictionRepository(gdb *gorm.DB) *GormPredictionRepository {
	return &GormPredictionRepository{db: gdb}
}

// Create inserts p.
func (r *GormPredictionRepository) Create(ctx context.Context, p *types.YieldPrediction) error {
	rec := toRecord(p)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create prediction", err)
	}
	return nil
}

// GetByID retrieves a prediction by id.
func (r *GormPredictionRepository) GetByID(ctx context.Context, id string) (*types.YieldPrediction, error) {
	var rec predictionRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPrediction, "prediction not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve prediction", err)
	}
	return rec.toPrediction(), nil
}

// ListByUser returns userID's predictions, newest first.
func (r *GormPredictionRepository) ListByUser(ctx context.Context, userID string) ([]*types.YieldPrediction, error) {
	var recs []predictionRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}

	out := make([]*types.YieldPrediction, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toPrediction())
	}
	return out, nil
}

// Name implements core.HealthProbe.
func (r *GormPredictionRepository) Name() string { return "database" }

// Check implements core.HealthProbe.
func (r *GormPredictionRepository) Check(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toRecord(p *types.YieldPrediction) predictionRecord {
	return predictionRecord{
		ID:                      p.ID,
		UserID:                  p.UserID,
		CropType:                p.CropType,
		SoilType:                p.SoilType,
		SoilProfile:             p.SoilProfile,
		LandArea:                p.LandArea,
		Location:                p.Location,
		PlantingDate:            p.PlantingDate,
		Weather:                 p.Weather,
		ExternalModelInput:      p.ExternalModelInput,
		ExternalModelResponse:   []byte(p.ExternalModelResponse),
		ErrorDetails:            p.ErrorDetails,
		PredictedYieldKg:        p.PredictedYieldKg,
		YieldPerHectareKg:       p.YieldPerHectareKg,
		ConfidenceScore:         p.ConfidenceScore,
		UsedExternalModel:       p.UsedExternalModel,
		FetchedFromExternalAPIs: p.FetchedFromExternalAPIs,
		ModelVersion:            p.ModelVersion,
		Provenance:              p.Provenance,
		CreatedAt:               p.CreatedAt,
	}
}

func (rec *predictionRecord) toPrediction() *types.YieldPrediction {
	p := &types.YieldPrediction{
		ID:                      rec.ID,
		UserID:                  rec.UserID,
		CropType:                rec.CropType,
		SoilType:                rec.SoilType,
		SoilProfile:             rec.SoilProfile,
		LandArea:                rec.LandArea,
		Location:                rec.Location,
		PlantingDate:            rec.PlantingDate,
		Weather:                 rec.Weather,
		ExternalModelInput:      rec.ExternalModelInput,
		ErrorDetails:            rec.ErrorDetails,
		PredictedYieldKg:        rec.PredictedYieldKg,
		YieldPerHectareKg:       rec.YieldPerHectareKg,
		ConfidenceScore:         rec.ConfidenceScore,
		UsedExternalModel:       rec.UsedExternalModel,
		FetchedFromExternalAPIs: rec.FetchedFromExternalAPIs,
		ModelVersion:            rec.ModelVersion,
		Provenance:              rec.Provenance,
		CreatedAt:               rec.CreatedAt,
	}
	if len(rec.ExternalModelResponse) > 0 {
		p.ExternalModelResponse = json.RawMessage(rec.ExternalModelResponse)
	}
	return p
}
