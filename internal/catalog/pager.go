package catalog

import (
	"context"

	"github.com/pixseek/pixseek/internal/record"
)

// Pager walks the public photos in stable order, one page at a time, and
// converts them into index records. It feeds bulk index builds without
// holding the whole catalog in memory.
type Pager struct {
	catalog  *Catalog
	pageSize int
	offset   int
	done     bool
}

// NewPager returns a pager over the public photos. pageSize <= 0 means 500.
func NewPager(c *Catalog, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Pager{catalog: c, pageSize: pageSize}
}

// NextPage returns the next page of records, or an empty slice once the
// catalog is exhausted.
func (p *Pager) NextPage(ctx context.Context) ([]record.Record, error) {
	if p.done {
		return nil, nil
	}
	photos, err := p.catalog.ListPublic(ctx, p.offset, p.pageSize)
	if err != nil {
		return nil, err
	}
	p.offset += len(photos)
	if len(photos) < p.pageSize {
		p.done = true
	}

	records := make([]record.Record, 0, len(photos))
	for _, photo := range photos {
		records = append(records, PhotoRecord(photo))
	}
	return records, nil
}

// PhotoRecord converts a catalog row into an index record.
func PhotoRecord(p *Photo) record.Record {
	return record.Record{
		ItemID:    p.ID,
		SourceURI: p.SourceURI,
		Title:     p.Title,
		Owner:     p.Owner,
		Public:    p.Public,
		CreatedAt: p.CreatedAt,
		Extra:     p.Extra,
	}
}
