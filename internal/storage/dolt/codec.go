package dolt

import (
	"database/sql"
	"encoding/json"
)

// encodeJSON marshals v to a nullable TEXT column: nil/empty collections
// encode as SQL NULL rather than the literal string "null" or "[]", keeping
// the relational schema's optional columns genuinely optional.
func encodeJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []float32:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON[T any](ns sql.NullString) (T, error) {
	var out T
	if !ns.Valid || ns.String == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(ns.String), &out)
	return out, err
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
