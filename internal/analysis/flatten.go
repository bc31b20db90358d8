package analysis

import (
	"encoding/json"
	"sort"
	"strconv"

	"contractanalyzer/internal/domain"
)

// Flatten turns an extraction into one field per leaf, keyed by dotted path
// and sorted by name. Lists are stored as their JSON encoding.
func Flatten(data map[string]any) []domain.ExtractedField {
	var out []domain.ExtractedField
	flattenInto(&out, "", data)
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out
}

func flattenInto(out *[]domain.ExtractedField, prefix string, data map[string]any) {
	for k, v := range data {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, name, nested)
			continue
		}
		value, typ := leafValue(v)
		*out = append(*out, domain.ExtractedField{FieldName: name, FieldValue: value, FieldType: typ})
	}
}

func leafValue(v any) (*string, domain.FieldType) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, domain.FieldTypeNull
	case string:
		return &t, domain.FieldTypeString
	case bool:
		s = strconv.FormatBool(t)
		return &s, domain.FieldTypeBoolean
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
		return &s, domain.FieldTypeNumber
	case json.Number:
		s = t.String()
		return &s, domain.FieldTypeNumber
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, domain.FieldTypeNull
		}
		s = string(b)
		return &s, domain.FieldTypeList
	}
}
