// Package events defines the notifications the registry emits on success.
// They are buffered during an invocation and handed to sinks only after the
// storage transaction commits.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wasmregistry/internal/registry/models"
)

// Topics.
const (
	TopicRegister = "register"
	TopicDeploy   = "deploy"
	TopicPublish  = "publish"
)

// Topics lists every topic in emission-independent order.
var Topics = []string{TopicRegister, TopicDeploy, TopicPublish}

// Event is a typed notification.
type Event interface {
	Topic() string
}

// Register is emitted when a name is bound to an instance.
type Register struct {
	ContractName string         `json:"contract_name"`
	ContractID   models.Address `json:"contract_id"`
}

func (Register) Topic() string { return TopicRegister }

// Deploy is emitted when an instance is created from a published artifact.
type Deploy struct {
	WasmName     string         `json:"wasm_name"`
	ContractName string         `json:"contract_name,omitempty"`
	Version      string         `json:"version"`
	Deployer     models.Address `json:"deployer"`
	ContractID   models.Address `json:"contract_id"`
}

func (Deploy) Topic() string { return TopicDeploy }

// Publish is emitted when an artifact version is recorded.
type Publish struct {
	WasmName string         `json:"wasm_name"`
	WasmHash models.Hash    `json:"wasm_hash"`
	Version  string         `json:"version"`
	Author   models.Address `json:"author"`
}

func (Publish) Topic() string { return TopicPublish }

// Record is the serialized envelope handed to sinks.
type Record struct {
	ID    uuid.UUID `json:"id"`
	Topic string    `json:"topic"`
	// Channel names the sub-registry that emitted the record; empty for
	// the root registry.
	Channel   string          `json:"channel,omitempty"`
	Ledger    uint32          `json:"ledger"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRecord wraps ev for publication.
func NewRecord(ev Event, ledger uint32, at time.Time) (Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s event: %w", ev.Topic(), err)
	}
	return Record{
		ID:        uuid.New(),
		Topic:     ev.Topic(),
		Ledger:    ledger,
		Timestamp: at.UTC(),
		Payload:   payload,
	}, nil
}

// Decode unmarshals the payload into the typed event for r.Topic.
func (r Record) Decode() (Event, error) {
	var ev Event
	switch r.Topic {
	case TopicRegister:
		var e Register
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode register event: %w", err)
		}
		ev = e
	case TopicDeploy:
		var e Deploy
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode deploy event: %w", err)
		}
		ev = e
	case TopicPublish:
		var e Publish
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode publish event: %w", err)
		}
		ev = e
	default:
		return nil, fmt.Errorf("unknown topic %q", r.Topic)
	}
	return ev, nil
}

// Publisher delivers committed records.
type Publisher interface {
	Publish(ctx context.Context, records []Record) error
}

// Outbox persists records inside the caller's storage transaction.
type Outbox interface {
	Append(ctx context.Context, records []Record) error
}

// Log serves recent records, newest first. An empty topic matches all.
type Log interface {
	List(ctx context.Context, topic string, limit int) ([]Record, error)
}

// Fanout publishes to every sink in order and stops at the first failure.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, records []Record) error {
	for _, p := range f {
		if err := p.Publish(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
