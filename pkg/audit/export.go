package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export formats
const (
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
)

var csvHeader = []string{
	"id",
	"created_at",
	"tenant_id",
	"actor_user_id",
	"actor_email",
	"action",
	"resource",
	"resource_id",
	"ip_address",
	"user_agent",
	"request_id",
	"details",
}

// WriteNDJSON writes one JSON object per line
func WriteNDJSON(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", rec.ID, err)
		}
	}
	return nil
}

// WriteCSV writes a header row followed by one row per record. Details are
// embedded as a JSON string.
func WriteCSV(w io.Writer, records []*Record) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		details, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details for record %d: %w", rec.ID, err)
		}

		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.TenantID,
			rec.ActorUserID,
			rec.ActorEmail,
			rec.Action,
			rec.Resource,
			rec.ResourceID,
			rec.IPAddress,
			rec.UserAgent,
			rec.RequestID,
			string(details),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
