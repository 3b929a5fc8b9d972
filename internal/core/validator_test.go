package core

import (
	"errors"
	"testing"

	"cropyield/internal/types"
)

type soilLookup struct {
	State       string       `json:"state" validate:"required"`
	District    string       `json:"district" validate:"required"`
	LandArea    float64      `json:"landArea" validate:"gt=0"`
	Coordinates *coordinates `json:"coordinates,omitempty" validate:"omitempty"`
}

type coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

func validationMessages(t *testing.T, err error) []string {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationFailed {
		t.Fatalf("expected %s, got %s", types.ErrCodeValidationFailed, appErr.Code)
	}
	msgs, ok := appErr.Details["validation_errors"].([]string)
	if !ok {
		t.Fatalf("expected []string validation_errors, got %T", appErr.Details["validation_errors"])
	}
	return msgs
}

func TestValidateStruct_Valid(t *testing.T) {
	v := NewValidator(discardLogger())
	err := v.ValidateStruct(soilLookup{
		State:       "Gujarat",
		District:    "Ahmedabad",
		LandArea:    1.5,
		Coordinates: &coordinates{Lat: 23.03, Lon: 72.58},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStruct_UsesJSONFieldNames(t *testing.T) {
	v := NewValidator(discardLogger())
	msgs := validationMessages(t, v.ValidateStruct(soilLookup{}))

	want := []string{
		"state is required",
		"district is required",
		"landArea must be greater than 0",
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, msgs[i], want[i])
		}
	}
}

func TestValidateStruct_NestedCoordinates(t *testing.T) {
	v := NewValidator(discardLogger())
	msgs := validationMessages(t, v.ValidateStruct(soilLookup{
		State:       "Bihar",
		District:    "Patna",
		LandArea:    1,
		Coordinates: &coordinates{Lat: 123, Lon: 72},
	}))

	if len(msgs) != 1 || msgs[0] != "coordinates.lat must be a valid latitude" {
		t.Errorf("unexpected messages %v", msgs)
	}
}

func TestValidateStruct_NonStructIsInternal(t *testing.T) {
	v := NewValidator(discardLogger())
	err := v.ValidateStruct("not a struct")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalUnexpected {
		t.Errorf("expected internal error, got %v", err)
	}
}
