package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasmregistry/internal/registry/models"
)

func TestRecordCarriesTypedPayload(t *testing.T) {
	ev := Deploy{
		WasmName:     "hello-world",
		ContractName: "hello",
		Version:      "0.0.1",
		ContractID:   models.ContractAddress(models.HashOf([]byte("id"))),
	}
	r, err := NewRecord(ev, 42, time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)))
	require.NoError(t, err)

	assert.Equal(t, TopicDeploy, r.Topic)
	assert.Equal(t, time.UTC, r.Timestamp.Location())
	assert.JSONEq(t, `{"wasm_name":"hello-world","contract_name":"hello","version":"0.0.1","deployer":"","contract_id":"`+ev.ContractID.String()+`"}`, string(r.Payload))

	back, err := r.Decode()
	require.NoError(t, err)
	assert.Equal(t, ev, back)

	r.Topic = "nope"
	_, err = r.Decode()
	assert.Error(t, err)
}

type sink struct {
	n   int
	err error
}

func (s *sink) Publish(context.Context, []Record) error {
	s.n++
	return s.err
}

func TestFanoutStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &sink{}, &sink{err: boom}, &sink{}
	err := Fanout{a, b, c}.Publish(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
	assert.Zero(t, c.n)
}
