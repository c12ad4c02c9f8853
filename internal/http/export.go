package http

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

var historyCSVHeader = []string{
	"id", "plate", "vehicle_class", "entry_time", "exit_time",
	"duration_minutes", "fee", "is_vip", "evidence_ref",
}

// exportHistory streams the whole transaction history as CSV, newest first.
func (h *Handler) exportHistory(c *gin.Context) {
	records, err := h.ledger.AllHistory(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	filename := fmt.Sprintf("parking-history-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(historyCSVHeader)
	for _, r := range records {
		_ = w.Write([]string{
			r.ID,
			r.Plate,
			string(r.VehicleClass),
			r.EntryTime.UTC().Format(time.RFC3339),
			r.ExitTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.DurationMinutes, 'f', 2, 64),
			strconv.FormatFloat(r.Fee, 'f', 2, 64),
			strconv.FormatBool(r.IsVIP),
			r.EvidenceRef,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.log.Error().Err(err).Msg("failed to write history export")
	}
}
