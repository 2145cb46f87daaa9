package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/OrlandoBitencourt/pennant/internal/domain"
)

// BoolVariation returns the value of flag id as a bool. String values
// are true only when equal to "true".
func (s *Syncer) BoolVariation(id string, defaultValue bool) bool {
	r := s.lookup(id)
	if r.found {
		switch v := r.evaluation.Value.(type) {
		case bool:
			s.recordVariation(r, domain.KindBoolean, v)
			return v
		case string:
			s.recordVariation(r, domain.KindBoolean, v == "true")
			return v == "true"
		}
	}
	s.recordDefault(r, id, domain.KindBoolean, defaultValue)
	return defaultValue
}

// StringVariation returns the value of flag id as a string
func (s *Syncer) StringVariation(id string, defaultValue string) string {
	r := s.lookup(id)
	if r.found {
		if v, ok := stringValue(r.evaluation.Value); ok {
			s.recordVariation(r, domain.KindString, v)
			return v
		}
	}
	s.recordDefault(r, id, domain.KindString, defaultValue)
	return defaultValue
}

// NumberVariation returns the value of flag id as a float64. Numeric
// strings are parsed.
func (s *Syncer) NumberVariation(id string, defaultValue float64) float64 {
	r := s.lookup(id)
	if r.found {
		v, err := numberValue(r.evaluation.Value)
		if err == nil {
			s.recordVariation(r, domain.KindNumber, v)
			return v
		}
		s.loggers.Errorf("Evaluation %s is not a number: %v", id, err)
	}
	s.recordDefault(r, id, domain.KindNumber, defaultValue)
	return defaultValue
}

// JSONVariation returns the value of flag id as a JSON object. An
// evaluation without a value yields {id: null}.
func (s *Syncer) JSONVariation(id string, defaultValue map[string]interface{}) map[string]interface{} {
	r := s.lookup(id)
	if r.found {
		v, err := objectValue(id, r.evaluation.Value)
		if err == nil {
			s.recordVariation(r, domain.KindJSON, v)
			return v
		}
		s.loggers.Errorf("Evaluation %s is not a JSON object: %v", id, err)
	}
	s.recordDefault(r, id, domain.KindJSON, defaultValue)
	return defaultValue
}

// recordVariation records a read served from the cache
func (s *Syncer) recordVariation(r read, kind domain.Kind, value interface{}) {
	s.telemetry.RecordVariation(context.Background(), string(kind), true)

	served := r.evaluation
	served.Value = value
	s.pushAnalytics(r.sess, r.scope, served)
}

// recordDefault records a read that fell back to the default value. The
// flag still counts for analytics when its feature config is known.
func (s *Syncer) recordDefault(r read, id string, kind domain.Kind, value interface{}) {
	s.telemetry.RecordVariation(context.Background(), string(kind), false)

	if r.sess == nil {
		return
	}
	s.pushAnalytics(r.sess, r.scope, domain.Evaluation{Flag: id, Kind: kind, Value: value})
}

func stringValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

type unsupportedTypeError struct {
	value interface{}
}

func (e unsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %T", e.value)
}

func numberValue(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, unsupportedTypeError{value: value}
	}
}

func objectValue(id string, value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return map[string]interface{}{id: nil}, nil
	case map[string]interface{}:
		return v, nil
	case string:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, err
		}
		if obj == nil {
			return map[string]interface{}{id: nil}, nil
		}
		return obj, nil
	default:
		return nil, unsupportedTypeError{value: value}
	}
}
