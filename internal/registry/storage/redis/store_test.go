package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmregistry/internal/registry/storage"
)

func TestEntryEncoding(t *testing.T) {
	e := storage.Entry{Value: []byte("payload"), LiveUntil: 123456}
	got, err := decodeEntry(encodeEntry(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = decodeEntry([]byte{1, 2})
	assert.Error(t, err)
}

func TestExpiryCoversLiveUntilLedger(t *testing.T) {
	s := New(nil, storage.NewManualSequence(0), WithLedgerClose(time.Second), WithPrefix("t:"))
	assert.Equal(t, 11*time.Second, s.expiry(110, 100))
	assert.Equal(t, "t:\x01abc", s.key(storage.EncodeKey(storage.NamespaceWasm, []byte("abc"))))
}
