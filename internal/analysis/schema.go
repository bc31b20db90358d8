package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind is the value type of a schema field.
type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindBoolean    Kind = "boolean"
	KindDate       Kind = "date"
	KindStringList Kind = "string_list"
	KindObject     Kind = "object"
)

// Field describes one key of the extraction. Object fields nest further fields.
type Field struct {
	Name   string
	Kind   Kind
	Hint   string
	Fields []Field
}

// Schema is the fixed extraction contract between the analysis client and the
// model. Every key is always present in an analysis result; values the model
// could not find are null.
var Schema = []Field{
	{Name: "vendor_information", Kind: KindObject, Fields: []Field{
		{Name: "vendor_name", Kind: KindString, Hint: "legal name of the service provider"},
		{Name: "vendor_contact", Kind: KindString, Hint: "contact person, email or phone"},
		{Name: "vendor_address", Kind: KindString},
		{Name: "vendor_tax_id", Kind: KindString},
	}},
	{Name: "financial_terms", Kind: KindObject, Fields: []Field{
		{Name: "pricing", Kind: KindObject, Fields: []Field{
			{Name: "total_contract_value", Kind: KindNumber, Hint: "total value over the full term"},
			{Name: "monthly_fee", Kind: KindNumber},
			{Name: "percentage_rate", Kind: KindNumber, Hint: "percentage as a number, e.g. 5.5 for 5.5%"},
			{Name: "per_unit_fee", Kind: KindNumber, Hint: "fee per claim, encounter or other unit"},
			{Name: "currency", Kind: KindString, Hint: "ISO 4217 code, e.g. USD"},
			{Name: "has_variable_pricing", Kind: KindBoolean, Hint: "true if fees depend on volume or collections"},
			{Name: "pricing_summary", Kind: KindString, Hint: "one or two sentences describing how the vendor is paid"},
		}},
		{Name: "pricing_model", Kind: KindString, Hint: "e.g. percentage of collections, flat fee, per claim"},
		{Name: "payment_terms", Kind: KindString, Hint: "e.g. Net 30"},
		{Name: "payment_schedule", Kind: KindString},
		{Name: "late_payment_penalties", Kind: KindString},
	}},
	{Name: "service_details", Kind: KindObject, Fields: []Field{
		{Name: "service_scope", Kind: KindString},
		{Name: "services_included", Kind: KindStringList},
		{Name: "services_excluded", Kind: KindStringList},
		{Name: "performance_metrics", Kind: KindStringList},
		{Name: "service_level_agreements", Kind: KindString},
	}},
	{Name: "contract_terms", Kind: KindObject, Fields: []Field{
		{Name: "start_date", Kind: KindDate},
		{Name: "end_date", Kind: KindDate},
		{Name: "contract_duration", Kind: KindString},
		{Name: "automatic_renewal", Kind: KindBoolean},
		{Name: "renewal_terms", Kind: KindString},
		{Name: "termination_clauses", Kind: KindString},
		{Name: "notice_period", Kind: KindString},
	}},
	{Name: "compliance_and_legal", Kind: KindObject, Fields: []Field{
		{Name: "hipaa_compliance_mentioned", Kind: KindBoolean},
		{Name: "hipaa_requirements", Kind: KindString},
		{Name: "data_security_requirements", Kind: KindString},
		{Name: "audit_rights", Kind: KindString},
		{Name: "liability_limitations", Kind: KindString},
		{Name: "indemnification", Kind: KindString},
		{Name: "insurance_requirements", Kind: KindString},
	}},
	{Name: "rcm_specific", Kind: KindObject, Fields: []Field{
		{Name: "billing_services", Kind: KindStringList},
		{Name: "coding_services", Kind: KindStringList},
		{Name: "denial_management", Kind: KindString},
		{Name: "ar_follow_up", Kind: KindString},
		{Name: "patient_collections", Kind: KindString},
		{Name: "expected_collection_rate", Kind: KindString},
		{Name: "reporting_frequency", Kind: KindString},
		{Name: "technology_platform", Kind: KindString},
	}},
	{Name: "additional_notes", Kind: KindString, Hint: "anything important not captured above"},
}

// describeSchema renders fields as the literal JSON template shown to the model.
func describeSchema(fields []Field, indent string) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, f := range fields {
		sb.WriteString(indent + "  " + fmt.Sprintf("%q: ", f.Name))
		if f.Kind == KindObject {
			sb.WriteString(describeSchema(f.Fields, indent+"  "))
		} else {
			sb.WriteString(fmt.Sprintf("%q", describeKind(f)))
		}
		if i < len(fields)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(indent + "}")
	return sb.String()
}

func describeKind(f Field) string {
	var s string
	switch f.Kind {
	case KindNumber:
		s = "number or null"
	case KindBoolean:
		s = "boolean or null"
	case KindDate:
		s = "YYYY-MM-DD or null"
	case KindStringList:
		s = "array of strings or null"
	default:
		s = "string or null"
	}
	if f.Hint != "" {
		s += " (" + f.Hint + ")"
	}
	return s
}

// Normalize fills every schema key missing from data with null, in place.
// Missing sections become objects of nulls; a section the model set to null
// stays null. Keys outside the schema are kept. Scalars the model gave for a
// list or boolean field are coerced where the meaning is unambiguous.
func Normalize(data map[string]any) {
	normalizeFields(data, Schema)
}

func normalizeFields(data map[string]any, fields []Field) {
	for _, f := range fields {
		v, ok := data[f.Name]
		if f.Kind != KindObject {
			if !ok {
				data[f.Name] = nil
				continue
			}
			data[f.Name] = coerce(f.Kind, v)
			continue
		}
		switch section := v.(type) {
		case map[string]any:
			normalizeFields(section, f.Fields)
		case nil:
			if !ok {
				filled := map[string]any{}
				normalizeFields(filled, f.Fields)
				data[f.Name] = filled
			}
		}
	}
}

// coerce converts a lone string into a one-element list and yes/no text into
// a boolean. Anything else is returned unchanged for Validate to judge.
func coerce(kind Kind, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch kind {
	case KindStringList:
		if strings.TrimSpace(s) == "" {
			return []any{}
		}
		return []any{s}
	case KindBoolean:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return v
}

// jsonSchema returns a JSON Schema document describing Schema. Scalar text
// fields tolerate numbers and vice versa; booleans, lists and sections are strict.
func jsonSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		required = append(required, f.Name)
		switch f.Kind {
		case KindObject:
			s := jsonSchema(f.Fields)
			s["type"] = []string{"object", "null"}
			props[f.Name] = s
		case KindBoolean:
			props[f.Name] = map[string]any{"type": []string{"boolean", "null"}}
		case KindStringList:
			props[f.Name] = map[string]any{"type": []string{"array", "null"}}
		default:
			props[f.Name] = map[string]any{"type": []string{"string", "number", "null"}}
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func extractionSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(jsonSchema(Schema))
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("extraction.json", strings.NewReader(string(b))); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("extraction.json")
	})
	return compiledSchema, compileErr
}

// Validate checks a normalized extraction against Schema.
func Validate(data map[string]any) error {
	s, err := extractionSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(any(data)); err != nil {
		return fmt.Errorf("validate extraction: %w", err)
	}
	return nil
}
