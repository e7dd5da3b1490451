package journals

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stubRow plays back one database row. A nil value stands for SQL NULL and
// is only assignable to pointer destinations, mirroring driver behavior.
type stubRow struct {
	values []any
}

func (r stubRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("expected %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		v := r.values[i]
		switch d := d.(type) {
		case **int64:
			if v == nil {
				*d = nil
				continue
			}
			val := v.(int64)
			*d = &val
		case *int64:
			if v == nil {
				return fmt.Errorf("column %d: cannot scan NULL into int64", i)
			}
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *VoucherType:
			*d = VoucherType(v.(string))
		case *DocStatus:
			*d = DocStatus(v.(int64))
		default:
			return fmt.Errorf("column %d: unsupported destination %T", i, d)
		}
	}
	return nil
}

func entryRow(postedBy, reversalOf any) stubRow {
	at := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	return stubRow{values: []any{
		int64(41), "JE-0041", int64(1), at, "JOURNAL", "INV-2024-0042",
		1075.0, 1075.0, int64(1), "SALES_INVOICE", uuid.New(), "Invoice INV-2024-0042",
		reversalOf, postedBy, at, at, at,
	}}
}

func TestScanEntryNullPostedBy(t *testing.T) {
	entry, err := scanEntry(entryRow(nil, nil))
	require.NoError(t, err)
	require.Zero(t, entry.PostedBy)
	require.Nil(t, entry.ReversalOf)
	require.Equal(t, DocStatusPosted, entry.DocStatus)
}

func TestScanEntryPostedByActor(t *testing.T) {
	entry, err := scanEntry(entryRow(int64(7), int64(12)))
	require.NoError(t, err)
	require.Equal(t, int64(7), entry.PostedBy)
	require.NotNil(t, entry.ReversalOf)
	require.Equal(t, int64(12), *entry.ReversalOf)
}
