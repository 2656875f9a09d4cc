package engine

import (
	"context"
	"fmt"
)

// Plan is what a pass over a collection would do, computed without consuming
// the changeset or contacting a remote.
type Plan struct {
	Collection string   `json:"collection"`
	Update     []string `json:"update"`
	Remove     []string `json:"remove"`
	Cancel     []string `json:"cancel"`
}

// Preview classifies the collection's pending ids the way Sync would. The
// changeset stays queued and nothing is written locally.
func (e *Engine) Preview(ctx context.Context, collection string) (*Plan, error) {
	plan := &Plan{
		Collection: collection,
		Update:     []string{},
		Remove:     []string{},
		Cancel:     []string{},
	}
	entry, err := e.local.Pending(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("read pending %s: %w", collection, err)
	}
	if entry == nil {
		return plan, nil
	}

	updates, removes, cancelled := e.classify(ctx, collection, entry.Changeset.IDs())
	for _, u := range updates {
		plan.Update = append(plan.Update, u.id)
	}
	plan.Remove = append(plan.Remove, removes...)
	plan.Cancel = append(plan.Cancel, cancelled...)
	return plan, nil
}

// PreviewAll previews every collection with pending changes, in name order.
func (e *Engine) PreviewAll(ctx context.Context) ([]*Plan, error) {
	cols, err := e.local.PendingCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending collections: %w", err)
	}
	plans := make([]*Plan, 0, len(cols))
	for _, c := range cols {
		p, err := e.Preview(ctx, c)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}
