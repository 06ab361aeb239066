package abg

import (
	"context"
)

// RecordStore is the append-only results log. List returns records in
// append order; limit <= 0 returns everything from offset on.
type RecordStore interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, limit, offset int) ([]Record, int, error)
}

// Publisher receives each record after it has been saved.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// describer is implemented by stores that name themselves in the
// confirmation message.
type describer interface {
	Description() string
}

func describe(store RecordStore) string {
	if d, ok := store.(describer); ok {
		return d.Description()
	}
	return "results log"
}

// window applies limit/offset to n items and returns the slice bounds.
func window(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
