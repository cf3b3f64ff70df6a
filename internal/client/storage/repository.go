// Package storage is the durable key/value layer behind the credential store.
//
// Values are opaque byte slices. Get returns (nil, nil) for a missing key so
// callers can treat "absent" without inspecting errors. SetMany and Delete act
// on several keys at once and are all-or-nothing: a reader never observes a
// subset of the change.
package storage

import "context"

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}
