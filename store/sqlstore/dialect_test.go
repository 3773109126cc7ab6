package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/transaction"
)

func TestRebind(t *testing.T) {
	numbered := Dialect{Numbered: true}
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", numbered.rebind("a = ? AND b IN (?, ?)"))

	plain := Dialect{}
	assert.Equal(t, "a = ? AND b = ?", plain.rebind("a = ? AND b = ?"))
}

func TestNullTimeScan(t *testing.T) {
	want := time.Date(2026, 3, 10, 12, 30, 0, 500, time.UTC)

	tests := []struct {
		name string
		src  any
	}{
		{"Native", want.In(time.FixedZone("X", 3600))},
		{"UnixNanos", want.UnixNano()},
		{"Text", want.Format(time.RFC3339Nano)},
		{"Bytes", []byte(want.Format(time.RFC3339Nano))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nt nullTime
			require.NoError(t, nt.Scan(tt.src))
			assert.True(t, nt.Valid)
			assert.True(t, want.Equal(nt.Time))
			assert.Equal(t, time.UTC, nt.Time.Location())
		})
	}

	var nt nullTime
	require.NoError(t, nt.Scan(nil))
	assert.False(t, nt.Valid)
	assert.Error(t, nt.Scan(3.5))
}

func TestIDList(t *testing.T) {
	v, err := idList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var l idList
	require.NoError(t, l.Scan(`["acct_a","acct_b"]`))
	assert.Equal(t, idList{"acct_a", "acct_b"}, l)
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, "created DESC, tx_id DESC", orderBy(""))
	assert.Equal(t, "created ASC, tx_id ASC", orderBy(transaction.SortCreated))
	assert.Equal(t, "credit DESC, tx_id DESC", orderBy(transaction.SortCreditsDesc))
	assert.Equal(t, "created DESC, tx_id DESC", orderBy("bogus"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
