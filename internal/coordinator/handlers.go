package coordinator

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	xferrors "github.com/platformforge/transfer-coordinator/infrastructure/errors"
	"github.com/platformforge/transfer-coordinator/internal/orchestrator"
	"github.com/platformforge/transfer-coordinator/internal/txlog"
)

// healthResponse mirrors the ambient /healthz shape (spec §12), scoped down
// from the teacher's enclave-aware variant to what a single-process
// coordinator actually reports.
type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	ActiveCount   int    `json:"activeTransfers"`
	ExportCount   int    `json:"storedExports"`
}

func (c *Coordinator) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
		ActiveCount:   len(c.orch.ActiveTransfers()),
		ExportCount:   c.exports.Len(),
	})
}

// startPlatformTransferBody is the JSON body for POST /transfers/start.
type startPlatformTransferBody struct {
	SourceInstanceID    int    `json:"sourceInstanceId"`
	TargetInstanceID    string `json:"targetInstanceId"`
	SourcePlatformIndex int    `json:"sourcePlatformIndex"`
	ForceName           string `json:"forceName"`
}

func (c *Coordinator) handleStartPlatformTransfer(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	var body startPlatformTransferBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, xferrors.InvalidInput("body", "malformed JSON"))
		return
	}
	result := c.orch.HandleStartPlatformTransferRequest(r.Context(), orchestrator.StartTransferRequest{
		SourceInstanceID:    body.SourceInstanceID,
		TargetInstanceID:    body.TargetInstanceID,
		SourcePlatformIndex: body.SourcePlatformIndex,
		ForceName:           body.ForceName,
	})
	writeJSON(w, http.StatusOK, result)
}

// transferPlatformBody is the JSON body for POST /transfers/transfer.
type transferPlatformBody struct {
	ExportID         string `json:"exportId"`
	TargetInstanceID string `json:"targetInstanceId"`
}

func (c *Coordinator) handleTransferPlatform(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	var body transferPlatformBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, xferrors.InvalidInput("body", "malformed JSON"))
		return
	}
	result := c.orch.HandleTransferPlatformRequest(r.Context(), orchestrator.TransferExistingRequest{
		ExportID:         body.ExportID,
		TargetInstanceID: body.TargetInstanceID,
	})
	writeJSON(w, http.StatusOK, result)
}

// transferValidationBody is the JSON body for POST
// /transfers/{transferId}/validation, the target instance's
// TransferValidationEvent callback.
type transferValidationBody struct {
	Success          bool           `json:"success"`
	PlatformName     string         `json:"platformName"`
	SourceInstanceID int            `json:"sourceInstanceId"`
	Validation       map[string]any `json:"validation"`
	Metrics          map[string]any `json:"metrics"`
}

func (c *Coordinator) handleTransferValidation(w http.ResponseWriter, r *http.Request) {
	if !c.authorize(r) {
		writeError(w, xferrors.Unauthorized("missing or invalid service token"))
		return
	}
	transferID := mux.Vars(r)["transferId"]
	var body transferValidationBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, xferrors.InvalidInput("body", "malformed JSON"))
		return
	}
	c.orch.HandleTransferValidation(r.Context(), orchestrator.ValidationEvent{
		TransferID:       transferID,
		Success:          body.Success,
		PlatformName:     body.PlatformName,
		SourceInstanceID: body.SourceInstanceID,
		Validation:       body.Validation,
		Metrics:          body.Metrics,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// handleListTransactionLogs answers ListTransactionLogsRequest: the union of
// active and persisted transfers, most recent first.
func (c *Coordinator) handleListTransactionLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	summaries := txlog.GetTransferSummaries(c.orch, c.archive, limit)
	writeJSON(w, http.StatusOK, summaries)
}

// handleGetTransactionLog answers GetTransactionLogRequest for one
// transferId: the live detailed summary if still active, else the persisted
// record.
func (c *Coordinator) handleGetTransactionLog(w http.ResponseWriter, r *http.Request) {
	transferID := mux.Vars(r)["transferId"]

	if tr, ok := c.orch.GetTransfer(transferID); ok {
		events := c.txLog.Events(transferID)
		var lastEventAtMs int64
		if len(events) > 0 {
			lastEventAtMs = events[len(events)-1].TimestampMs
		}
		detail := txlog.BuildDetailedTransferSummary(tr, lastEventAtMs, transfer.NowMs())
		writeJSON(w, http.StatusOK, map[string]any{"transfer": detail, "events": events})
		return
	}

	for _, rec := range c.archive.Records() {
		if rec.TransferID == transferID {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	writeError(w, xferrors.NotFound("transfer", transferID))
}

func (c *Coordinator) handleListExports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.exports.List())
}

func (c *Coordinator) handleGetStoredExport(w http.ResponseWriter, r *http.Request) {
	exportID := mux.Vars(r)["exportId"]
	record, ok := c.exports.Get(exportID)
	if !ok {
		writeError(w, xferrors.NotFound("export", exportID))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (c *Coordinator) handleGetPlatformTree(w http.ResponseWriter, r *http.Request) {
	forceName := queryString(r, "forceName", "player")
	snapshot := c.tree.BuildTree(r.Context(), forceName)
	writeJSON(w, http.StatusOK, snapshot)
}
