package transport

import (
	"context"
	"encoding/json"
)

// Client adapts a Hub into the typed InstanceClient interface the
// orchestrator and platform tree depend on.
type Client struct {
	hub *Hub
}

func NewClient(hub *Hub) *Client {
	return &Client{hub: hub}
}

var _ InstanceClient = (*Client)(nil)

func (c *Client) ExportPlatformRequest(ctx context.Context, instanceID, platformIndex int, forceName string) (ExportPlatformResult, error) {
	raw, err := c.hub.call(ctx, instanceID, "ExportPlatformRequest", map[string]any{
		"platformIndex": platformIndex,
		"forceName":     forceName,
	})
	if err != nil {
		return ExportPlatformResult{}, err
	}
	var result ExportPlatformResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ExportPlatformResult{}, err
	}
	return result, nil
}

func (c *Client) ListPlatforms(ctx context.Context, instanceID int, forceName string) ([]PlatformEntry, error) {
	raw, err := c.hub.call(ctx, instanceID, "InstanceListPlatformsRequest", map[string]any{
		"forceName": forceName,
	})
	if err != nil {
		return nil, err
	}
	var entries []PlatformEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ImportPlatformRequest sends _transferId/_sourceInstanceId as request
// fields next to exportData so the target's later validation callback can
// be correlated. They are not injected into exportData itself: the payload
// bytes are passed through untouched.
func (c *Client) ImportPlatformRequest(ctx context.Context, instanceID int, exportID string, exportData []byte, forceName, transferID string, sourceInstanceID int) (ImportPlatformResult, error) {
	raw, err := c.hub.call(ctx, instanceID, "ImportPlatformRequest", map[string]any{
		"exportId":         exportID,
		"exportData":       json.RawMessage(exportData),
		"forceName":        forceName,
		"_transferId":      transferID,
		"_sourceInstanceId": sourceInstanceID,
	})
	if err != nil {
		return ImportPlatformResult{}, err
	}
	var result ImportPlatformResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ImportPlatformResult{}, err
	}
	return result, nil
}

func (c *Client) DeleteSourcePlatformRequest(ctx context.Context, instanceID, platformIndex int, platformName, forceName string) (RPCResult, error) {
	raw, err := c.hub.call(ctx, instanceID, "DeleteSourcePlatformRequest", map[string]any{
		"platformIndex": platformIndex,
		"platformName":  platformName,
		"forceName":     forceName,
	})
	if err != nil {
		return RPCResult{}, err
	}
	var result RPCResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return RPCResult{}, err
	}
	return result, nil
}

func (c *Client) UnlockSourcePlatformRequest(ctx context.Context, instanceID int, platformName, forceName string) (RPCResult, error) {
	raw, err := c.hub.call(ctx, instanceID, "UnlockSourcePlatformRequest", map[string]any{
		"platformName": platformName,
		"forceName":    forceName,
	})
	if err != nil {
		return RPCResult{}, err
	}
	var result RPCResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return RPCResult{}, err
	}
	return result, nil
}

// TransferStatusUpdate is cosmetic and best-effort: the caller is expected
// to ignore its error for transfer-outcome purposes (spec §7).
func (c *Client) TransferStatusUpdate(ctx context.Context, instanceID int, transferID, platformName, message, color string) error {
	_, err := c.hub.call(ctx, instanceID, "TransferStatusUpdate", map[string]any{
		"transferId":   transferID,
		"platformName": platformName,
		"message":      message,
		"color":        color,
	})
	return err
}
