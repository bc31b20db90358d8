package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/export"
	"contractanalyzer/internal/middleware"
	"contractanalyzer/internal/service"
)

const (
	exportBatchSize = 100
	exportBaseName  = "contracts"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHandler streams completed contract analyses as spreadsheets.
type ExportHandler struct {
	contracts service.ContractService
	now       func() time.Time
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(contracts service.ContractService) *ExportHandler {
	return &ExportHandler{contracts: contracts, now: time.Now}
}

// CSV handles GET /api/v1/exports/contracts.csv
func (h *ExportHandler) CSV(c *gin.Context) {
	ctx := c.Request.Context()

	// Fetch the first batch before writing headers so that a store failure
	// still produces a JSON error response.
	first, err := h.contracts.ListCompleted(ctx, 0, exportBatchSize)
	if err != nil {
		HandleError(c, err)
		return
	}

	filename := export.BuildFilename(exportBaseName, "csv", h.now())
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)

	if _, err := c.Writer.Write(export.BOM); err != nil {
		return
	}
	w := export.NewCSVWriter(c.Writer)
	if err := w.WriteHeader(); err != nil {
		return
	}

	batch := first
	for offset := 0; ; {
		if err := w.WriteContracts(batch); err != nil {
			middleware.RequestLogger(c).Error("csv export write failed", zap.Error(err))
			return
		}
		w.Flush()
		if len(batch) < exportBatchSize {
			break
		}
		offset += len(batch)
		if batch, err = h.contracts.ListCompleted(ctx, offset, exportBatchSize); err != nil {
			// Headers are already sent; the truncated file is the signal.
			middleware.RequestLogger(c).Error("csv export batch failed", zap.Int("offset", offset), zap.Error(err))
			return
		}
	}
	w.Flush()
}

// XLSX handles GET /api/v1/exports/contracts.xlsx
func (h *ExportHandler) XLSX(c *gin.Context) {
	contracts, err := h.allCompleted(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, contracts); err != nil {
		HandleError(c, err)
		return
	}

	filename := export.BuildFilename(exportBaseName, "xlsx", h.now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) allCompleted(ctx context.Context) ([]domain.ContractWithAnalysis, error) {
	var all []domain.ContractWithAnalysis
	for offset := 0; ; offset += exportBatchSize {
		batch, err := h.contracts.ListCompleted(ctx, offset, exportBatchSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < exportBatchSize {
			return all, nil
		}
	}
}
