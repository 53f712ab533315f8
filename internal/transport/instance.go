// Package transport implements the duplex RPC transport between the
// coordinator and game-server instances, and the WebSocket push channel to
// operator/UI subscribers.
package transport

import "context"

// ExportPlatformResult is the response to an ExportPlatformRequest.
type ExportPlatformResult struct {
	Success  bool           `json:"success"`
	ExportID string         `json:"exportId,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}

// ImportPlatformResult is the response to an ImportPlatformRequest.
type ImportPlatformResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RPCResult is the common {success, error?} shape shared by
// DeleteSourcePlatformRequest and UnlockSourcePlatformRequest responses.
type RPCResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// InstanceClient is the set of opaque RPCs the orchestrator and platform
// tree issue against a source or target instance (spec §6). The internal
// implementation of the instance side (entity serialization, per-save
// patching, etc.) is out of scope; the core only sees these request/
// response shapes.
type InstanceClient interface {
	// ExportPlatformRequest triggers an export on a platform.
	ExportPlatformRequest(ctx context.Context, instanceID, platformIndex int, forceName string) (ExportPlatformResult, error)

	// ListPlatforms enumerates platforms on an instance for a force.
	ListPlatforms(ctx context.Context, instanceID int, forceName string) ([]PlatformEntry, error)

	// ImportPlatformRequest hands off an export payload for import,
	// embedding transferID/sourceInstanceID so the target's subsequent
	// validation callback can be correlated.
	ImportPlatformRequest(ctx context.Context, instanceID int, exportID string, exportData []byte, forceName, transferID string, sourceInstanceID int) (ImportPlatformResult, error)

	// DeleteSourcePlatformRequest triggers source cleanup after a
	// successful transfer.
	DeleteSourcePlatformRequest(ctx context.Context, instanceID, platformIndex int, platformName, forceName string) (RPCResult, error)

	// UnlockSourcePlatformRequest rolls back a source-side lock on
	// failure.
	UnlockSourcePlatformRequest(ctx context.Context, instanceID int, platformName, forceName string) (RPCResult, error)

	// TransferStatusUpdate sends a cosmetic in-world status line. Best
	// effort: failures here never affect transfer outcome.
	TransferStatusUpdate(ctx context.Context, instanceID int, transferID, platformName, message, color string) error
}

// PlatformEntry is one platform as reported by ListPlatforms.
type PlatformEntry struct {
	PlatformIndex int    `json:"platformIndex"`
	PlatformName  string `json:"platformName"`
	ForceName     string `json:"forceName"`
}
