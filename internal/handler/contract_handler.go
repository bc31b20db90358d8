package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ContractHandler handles contract upload, lookup and analysis endpoints.
type ContractHandler struct {
	contracts service.ContractService
}

// NewContractHandler creates a new ContractHandler.
func NewContractHandler(contracts service.ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	ContractID uuid.UUID             `json:"contract_id"`
	Status     domain.ContractStatus `json:"status"`
	Message    string                `json:"message"`
}

// Upload handles POST /api/v1/contracts/upload
func (h *ContractHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	contract, err := h.contracts.Upload(c.Request.Context(), service.UploadInput{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, UploadResponse{
		ContractID: contract.ID,
		Status:     contract.Status,
		Message:    "contract uploaded; analysis has been scheduled",
	})
}

// List handles GET /api/v1/contracts
func (h *ContractHandler) List(c *gin.Context) {
	offset, limit, ok := parsePage(c)
	if !ok {
		return
	}
	filter := port.ContractFilter{Offset: offset, Limit: limit}
	if raw := c.Query("status"); raw != "" {
		status := domain.ContractStatus(raw)
		if !status.Valid() {
			RespondError(c, http.StatusBadRequest, "INVALID_STATUS_FILTER", "status must be one of uploaded, processing, completed, failed")
			return
		}
		filter.Status = &status
	}

	contracts, total, err := h.contracts.List(c.Request.Context(), filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, contracts, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// Get handles GET /api/v1/contracts/:id
func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, contract)
}

// Delete handles DELETE /api/v1/contracts/:id
func (h *ContractHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.contracts.Delete(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "contract deleted"})
}

// GetAnalysis handles GET /api/v1/contracts/:id/analysis
func (h *ContractHandler) GetAnalysis(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	a, err := h.contracts.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, a)
}

// Reanalyze handles POST /api/v1/contracts/:id/reanalyze
func (h *ContractHandler) Reanalyze(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	contract, err := h.contracts.Reanalyze(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, UploadResponse{
		ContractID: contract.ID,
		Status:     contract.Status,
		Message:    "re-analysis has been scheduled",
	})
}

// ExtractFieldsRequest names the fields for a narrow extraction.
type ExtractFieldsRequest struct {
	Fields []string `json:"fields" binding:"required"`
}

// ExtractFields handles POST /api/v1/contracts/:id/fields
func (h *ContractHandler) ExtractFields(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ExtractFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "body must be {\"fields\": [...]}")
		return
	}

	out, err := h.contracts.ExtractFields(c.Request.Context(), id, req.Fields)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"contract_id":       id,
		"fields":            out.Fields,
		"model":             out.Model,
		"prompt_tokens":     out.PromptTokens,
		"completion_tokens": out.CompletionTokens,
	})
}

// FieldValues handles GET /api/v1/fields/:name
func (h *ContractHandler) FieldValues(c *gin.Context) {
	offset, limit, ok := parsePage(c)
	if !ok {
		return
	}
	name := c.Param("name")
	values, total, err := h.contracts.ListFieldValues(c.Request.Context(), name, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, values, PagMeta{Total: total, Offset: offset, Limit: limit})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid contract ID")
		return uuid.Nil, false
	}
	return id, true
}

// parsePage converts 1-based page and page_size query parameters to an
// offset and limit.
func parsePage(c *gin.Context) (offset, limit int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		RespondError(c, http.StatusBadRequest, "INVALID_PAGE", "page must be a positive integer")
		return 0, 0, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 {
		RespondError(c, http.StatusBadRequest, "INVALID_PAGE_SIZE", "page_size must be a positive integer")
		return 0, 0, false
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page-1 > math.MaxInt32/size {
		RespondError(c, http.StatusBadRequest, "INVALID_PAGE", "page is out of range")
		return 0, 0, false
	}
	return (page - 1) * size, size, true
}
