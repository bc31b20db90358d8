package domain

import "strings"

// DocumentType is the declared type of an uploaded contract. The set is closed;
// every value listed in DocumentTypes must have an extraction strategy.
type DocumentType string

const (
	DocumentTypePDF  DocumentType = "pdf"
	DocumentTypeDOCX DocumentType = "docx"
)

// DocumentTypes lists every supported document type.
var DocumentTypes = []DocumentType{DocumentTypePDF, DocumentTypeDOCX}

// DocumentContentTypes maps DocumentType to its MIME content type.
var DocumentContentTypes = map[DocumentType]string{
	DocumentTypePDF:  "application/pdf",
	DocumentTypeDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ParseDocumentType resolves a file extension (with or without a leading dot)
// to a DocumentType.
func ParseDocumentType(ext string) (DocumentType, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, t := range DocumentTypes {
		if string(t) == ext {
			return t, true
		}
	}
	return "", false
}

// ContractStatus tracks a contract through the analysis pipeline.
type ContractStatus string

const (
	ContractStatusUploaded   ContractStatus = "uploaded"
	ContractStatusProcessing ContractStatus = "processing"
	ContractStatusCompleted  ContractStatus = "completed"
	ContractStatusFailed     ContractStatus = "failed"
)

// Valid reports whether s is a known status.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusUploaded, ContractStatusProcessing, ContractStatusCompleted, ContractStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends a pipeline run.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusFailed
}

// FieldType classifies a flattened extracted value.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeList    FieldType = "list"
	FieldTypeNull    FieldType = "null"
)
