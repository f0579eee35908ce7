package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/record"
)

// The methods below map catalog changes onto index mutations. They implement
// events.Applier, so the event pipeline can drive the index without knowing
// how mutations work.

// OnItemCreated indexes a newly created item. Private items are not
// searchable and are left out.
func (m *Manager) OnItemCreated(ctx context.Context, rec record.Record) error {
	if !rec.Public {
		m.logger.Debug("skipping private item", zap.String("item", rec.Key()))
		return nil
	}
	report, err := m.Update(ctx, []record.Record{rec})
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, report.Failed[0])
	}
	return nil
}

// OnItemDeleted removes a deleted item. Removing an item that was never
// indexed is a no-op.
func (m *Manager) OnItemDeleted(ctx context.Context, itemID string) error {
	_, err := m.Remove(ctx, []string{itemID})
	return err
}

// OnVisibilityChanged adds the item when it becomes public and removes it
// when it becomes private.
func (m *Manager) OnVisibilityChanged(ctx context.Context, rec record.Record, public bool) error {
	if public {
		rec.Public = true
		report, err := m.Update(ctx, []record.Record{rec})
		if err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, report.Failed[0])
		}
		return nil
	}
	_, err := m.Remove(ctx, []string{rec.Key()})
	return err
}
