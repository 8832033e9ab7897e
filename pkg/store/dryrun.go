package store

import (
	"context"

	"github.com/google/uuid"
)

// DryRun wraps a Store and swallows every write while counting what would
// have happened. Reads pass through so reference resolution can still see
// pre-existing records. Synthesized ids keep parent/child wiring working
// inside a single dry run.
type DryRun struct {
	next    Store
	Upserts map[string]int
	Inserts map[string]int
}

func NewDryRun(next Store) *DryRun {
	return &DryRun{
		next:    next,
		Upserts: make(map[string]int),
		Inserts: make(map[string]int),
	}
}

func (d *DryRun) Ping(ctx context.Context) error { return d.next.Ping(ctx) }

func (d *DryRun) Upsert(_ context.Context, collection string, records []Record, _ ...string) ([]Record, error) {
	d.Upserts[collection] += len(records)
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = withSyntheticID(r)
	}
	return out, nil
}

func (d *DryRun) Insert(_ context.Context, collection string, record Record) (Record, error) {
	d.Inserts[collection]++
	return withSyntheticID(record), nil
}

func (d *DryRun) Query(ctx context.Context, collection string, filter map[string]string) ([]Record, error) {
	return d.next.Query(ctx, collection, filter)
}

// Writes reports the total number of swallowed write operations.
func (d *DryRun) Writes() int {
	n := 0
	for _, c := range d.Upserts {
		n += c
	}
	for _, c := range d.Inserts {
		n += c
	}
	return n
}

func withSyntheticID(r Record) Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	if out.ID() == "" {
		out["id"] = uuid.NewString()
	}
	return out
}
