package coordinator

import (
	"encoding/base64"
	"net/http"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	xferrors "github.com/platformforge/transfer-coordinator/infrastructure/errors"
	"github.com/platformforge/transfer-coordinator/internal/orchestrator"
)

// defaultForceName is substituted for an omitted forceName field, matching
// the orchestrator's own default (spec §6).
const defaultForceName = "player"

func coalesceForceName(forceName string) string {
	if forceName == "" {
		return defaultForceName
	}
	return forceName
}

// platformExportEventBody is the JSON body of a source instance's
// PlatformExportEvent push (spec §6 "Consumed by the core"). exportData is
// base64-encoded since it is an opaque byte payload over a JSON transport.
type platformExportEventBody struct {
	ExportID         string `json:"exportId"`
	PlatformName     string `json:"platformName"`
	PlatformIndex    int    `json:"platformIndex"`
	ForceName        string `json:"forceName"`
	SourceInstanceID int    `json:"sourceInstanceId"`
	ExportData       string `json:"exportData"`
}

// handlePlatformExportEvent ingests a completed export into the store so a
// pending HandleStartPlatformTransferRequest's poll loop can pick it up.
func (c *Coordinator) handlePlatformExportEvent(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	var body platformExportEventBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, xferrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if body.ExportID == "" {
		writeError(w, xferrors.MissingParameter("exportId"))
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.ExportData)
	if err != nil {
		writeError(w, xferrors.InvalidInput("exportData", "must be base64-encoded"))
		return
	}

	record := transfer.ExportRecord{
		ExportID:         body.ExportID,
		PlatformName:     body.PlatformName,
		PlatformIndex:    body.PlatformIndex,
		ForceName:        coalesceForceName(body.ForceName),
		SourceInstanceID: body.SourceInstanceID,
		ExportData:       data,
		TimestampMs:      transfer.NowMs(),
		Size:             len(data),
	}
	c.exports.Put(r.Context(), record)
	if c.metrics != nil {
		c.metrics.SetExportsStored(c.exports.Len())
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// importUploadedExportBody is the JSON body for POST /exports/import: a
// one-shot, non-destructive import bypassing an export-producing source
// instance entirely.
type importUploadedExportBody struct {
	PlatformName     string `json:"platformName"`
	PlatformIndex    int    `json:"platformIndex"`
	ForceName        string `json:"forceName"`
	TargetInstanceID string `json:"targetInstanceId"`
	ExportData       string `json:"exportData"`
}

// handleImportUploadedExport stores the uploaded payload as a synthetic
// export with SourceInstanceID 0 (no originating instance to clean up or
// roll back against) and runs it through the normal transfer saga.
func (c *Coordinator) handleImportUploadedExport(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	var body importUploadedExportBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, xferrors.InvalidInput("body", "malformed JSON"))
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.ExportData)
	if err != nil {
		writeError(w, xferrors.InvalidInput("exportData", "must be base64-encoded"))
		return
	}

	exportID := transfer.NewExportID()
	c.exports.Put(r.Context(), transfer.ExportRecord{
		ExportID:         exportID,
		PlatformName:     body.PlatformName,
		PlatformIndex:    body.PlatformIndex,
		ForceName:        coalesceForceName(body.ForceName),
		SourceInstanceID: 0,
		ExportData:       data,
		TimestampMs:      transfer.NowMs(),
		Size:             len(data),
	})
	if c.metrics != nil {
		c.metrics.SetExportsStored(c.exports.Len())
	}

	result := c.orch.HandleTransferPlatformRequest(r.Context(), orchestrator.TransferExistingRequest{
		ExportID:         exportID,
		TargetInstanceID: body.TargetInstanceID,
	})
	writeJSON(w, http.StatusOK, result)
}
