package sealedlog

import (
	"context"
	"io"
)

// BlobStore defines the interface for payload storage backends
type BlobStore interface {
	// Upload stores the content read from reader under objectKey
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// Download returns the content stored under objectKey
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the content stored under objectKey
	Delete(ctx context.Context, objectKey string) error
}

// Repository defines the interface for message log and key record persistence.
//
// Implementations must keep indices contiguous per (owner, topic) even when
// several processes share the same backing store.
type Repository interface {
	// Message log operations

	// AppendMessage sets msg.Index to the current length of the
	// (msg.Owner, msg.Topic) sequence and stores msg at that index.
	AppendMessage(ctx context.Context, msg *Message) error
	CountMessages(ctx context.Context, owner Identity, topic string) (uint64, error)
	// GetMessage returns ErrIndexOutOfBounds when index >= CountMessages.
	GetMessage(ctx context.Context, owner Identity, topic string, index uint64) (*Message, error)
	ListTopics(ctx context.Context, owner Identity) ([]string, error)

	// Instance and key record operations

	// Initialize stores info and record unless an instance already exists.
	Initialize(ctx context.Context, info *InstanceInfo, record *KeyRecord) error
	GetInstance(ctx context.Context) (*InstanceInfo, error)
	GetKeyRecord(ctx context.Context) (*KeyRecord, error)
	// SwapKeyRecord replaces the key record if its administrator is still
	// expected, and returns ErrUnauthorized otherwise.
	SwapKeyRecord(ctx context.Context, expected Identity, next *KeyRecord) error
}

// EventSink receives notifications about committed and refused operations.
type EventSink interface {
	MessageAccepted(ctx context.Context, event MessageAcceptedEvent) error
	MessageRejected(ctx context.Context, event MessageRejectedEvent) error
	KeyMaterialChanged(ctx context.Context, event KeyMaterialChangedEvent) error
	AdministratorTransferred(ctx context.Context, event AdministratorTransferredEvent) error
}

// KeyGenerator names the blob that holds a payload.
type KeyGenerator interface {
	GenerateKey(owner, topic string, messageID string) string
}
