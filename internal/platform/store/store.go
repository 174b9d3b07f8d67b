// Package store provides the record store backing every clinicdesk
// collection: a small key→document layer holding whole collections as
// ordered JSON arrays plus a single session pointer. Two backends implement
// the same contract: a JSON file on disk (the default) and a Postgres
// key/jsonb table for deployments that want the data in a database.
//
// The contract is deliberately coarse: callers read a whole collection,
// mutate a copy, and write the whole collection back. There is exactly one
// logical writer, so no optimistic-concurrency check is performed; Update
// exists so that multi-collection writes (patient + login user at signup)
// land together or not at all.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names the three record collections.
type Collection string

const (
	Users     Collection = "users"
	Patients  Collection = "patients"
	Incidents Collection = "incidents"
)

// SessionUserKey is the storage key holding the current session pointer.
const SessionUserKey = "sessionUser"

// ErrValueNotFound is returned by GetValue when the key is absent.
var ErrValueNotFound = errors.New("store: value not found")

// Store is the record-store contract shared by the file and Postgres
// backends. Get returns the collection in insertion order, or an empty
// sequence when the collection has never been written. Set replaces the
// collection wholesale.
type Store interface {
	Get(ctx context.Context, c Collection) ([]json.RawMessage, error)
	Set(ctx context.Context, c Collection, docs []json.RawMessage) error

	// Has reports whether the collection key exists at all, which is how
	// seeding distinguishes "never initialised" from "emptied on purpose".
	Has(ctx context.Context, c Collection) (bool, error)

	// Single-value keys (the session pointer).
	GetValue(ctx context.Context, key string) (json.RawMessage, error)
	SetValue(ctx context.Context, key string, doc json.RawMessage) error
	DeleteValue(ctx context.Context, key string) error

	// Update applies fn's staged writes as one logical transaction.
	Update(ctx context.Context, fn func(tx *Tx) error) error

	Close() error
}

// Tx stages collection writes during an Update. Reads observe earlier staged
// writes within the same transaction.
type Tx struct {
	fetch  func(Collection) ([]json.RawMessage, error)
	staged map[Collection][]json.RawMessage
}

func newTx(fetch func(Collection) ([]json.RawMessage, error)) *Tx {
	return &Tx{fetch: fetch, staged: make(map[Collection][]json.RawMessage)}
}

// Get reads a collection inside the transaction.
func (tx *Tx) Get(c Collection) ([]json.RawMessage, error) {
	if docs, ok := tx.staged[c]; ok {
		return docs, nil
	}
	return tx.fetch(c)
}

// Set stages a whole-collection replacement.
func (tx *Tx) Set(c Collection, docs []json.RawMessage) {
	tx.staged[c] = docs
}

// Append is a convenience for the common append-one-record write.
func (tx *Tx) Append(c Collection, doc json.RawMessage) error {
	docs, err := tx.Get(c)
	if err != nil {
		return err
	}
	tx.Set(c, append(docs, doc))
	return nil
}

// MarshalDoc encodes a record for storage.
func MarshalDoc(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
