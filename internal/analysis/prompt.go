package analysis

import (
	"strings"
)

const systemPrompt = `You are a contract analyst for healthcare Revenue Cycle Management (RCM) services. ` +
	`You read vendor agreements for billing, coding, denial management, accounts receivable follow-up and ` +
	`patient collections, and extract their commercial, operational and compliance terms accurately. ` +
	`You only report what the document states. When a term is absent you return null rather than guessing.`

var schemaTemplate = describeSchema(Schema, "")

func buildAnalysisPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following contract and extract the information described below.\n\n")
	sb.WriteString("DOCUMENT TEXT:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nReturn a single JSON object with exactly this structure:\n")
	sb.WriteString(schemaTemplate)
	sb.WriteString(`

Rules:
- Every key above must be present. Use null for anything the document does not state; never omit a key.
- Format every date as YYYY-MM-DD.
- Write numbers without currency symbols or thousands separators.
- hipaa_compliance_mentioned must be true or false.
- Return only the JSON object, with no commentary.`)
	return sb.String()
}

func buildFieldsPrompt(text string, fields []string) string {
	var sb strings.Builder
	sb.WriteString("Extract the following information from this contract: ")
	sb.WriteString(strings.Join(fields, ", "))
	sb.WriteString("\n\nDOCUMENT TEXT:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nReturn the information as a JSON object with the field names as keys. If a field is not found, use null.")
	return sb.String()
}
