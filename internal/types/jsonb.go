package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// The nested prediction records store themselves as JSON documents in the
// SQLite store's text columns.
var (
	_ sql.Scanner   = (*Location)(nil)
	_ driver.Valuer = Location{}
	_ sql.Scanner   = (*SoilProfile)(nil)
	_ driver.Valuer = SoilProfile{}
	_ sql.Scanner   = (*WeatherObservation)(nil)
	_ driver.Valuer = WeatherObservation{}
	_ sql.Scanner   = (*ModelInput)(nil)
	_ driver.Valuer = ModelInput{}
	_ sql.Scanner   = (*Provenance)(nil)
	_ driver.Valuer = Provenance{}
)

// scanJSONB scans a JSONB database value into dest. It accepts the []byte and
// string representations different drivers hand back.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

func valueJSONB(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (l *Location) Scan(value any) error { return scanJSONB(l, value) }

// Value implements driver.Valuer.
func (l Location) Value() (driver.Value, error) { return valueJSONB(l) }

// Scan implements sql.Scanner.
func (s *SoilProfile) Scan(value any) error { return scanJSONB(s, value) }

// Value implements driver.Valuer.
func (s SoilProfile) Value() (driver.Value, error) { return valueJSONB(s) }

// Scan implements sql.Scanner.
func (w *WeatherObservation) Scan(value any) error { return scanJSONB(w, value) }

// Value implements driver.Valuer.
func (w WeatherObservation) Value() (driver.Value, error) { return valueJSONB(w) }

// Scan implements sql.Scanner.
func (m *ModelInput) Scan(value any) error { return scanJSONB(m, value) }

// Value implements driver.Valuer.
func (m ModelInput) Value() (driver.Value, error) { return valueJSONB(m) }

// Scan implements sql.Scanner.
func (p *Provenance) Scan(value any) error { return scanJSONB(p, value) }

// Value implements driver.Valuer.
func (p Provenance) Value() (driver.Value, error) { return valueJSONB(p) }
