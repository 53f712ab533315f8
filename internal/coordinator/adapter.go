package coordinator

import (
	"context"

	"github.com/platformforge/transfer-coordinator/domain/transfer"
	"github.com/platformforge/transfer-coordinator/internal/transport"
)

// treeLister adapts transport.Client (which speaks transport.PlatformEntry,
// the wire shape of InstanceListPlatformsRequest) to platformtree.PlatformLister
// (which speaks transfer.PlatformSummary, the domain shape the tree snapshot
// is built from).
type treeLister struct {
	client *transport.Client
}

// NewTreeLister adapts client into a platformtree.PlatformLister.
func NewTreeLister(client *transport.Client) *treeLister {
	return &treeLister{client: client}
}

func (l *treeLister) ListPlatforms(ctx context.Context, instanceID int, forceName string) ([]transfer.PlatformSummary, error) {
	entries, err := l.client.ListPlatforms(ctx, instanceID, forceName)
	if err != nil {
		return nil, err
	}
	out := make([]transfer.PlatformSummary, len(entries))
	for i, e := range entries {
		out[i] = transfer.PlatformSummary{
			PlatformIndex: e.PlatformIndex,
			PlatformName:  e.PlatformName,
			ForceName:     e.ForceName,
		}
	}
	return out, nil
}
