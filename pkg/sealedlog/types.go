package sealedlog

import (
	"time"
)

// Identity is an opaque caller principal, typically an account address.
// The empty string is the null identity.
type Identity string

// IsZero reports whether id is the null identity.
func (id Identity) IsZero() bool {
	return id == ""
}

func (id Identity) String() string {
	return string(id)
}

// Message is an accepted payload's record. The payload bytes themselves are
// kept in a BlobStore under ObjectKey.
type Message struct {
	Owner     Identity  `json:"owner"`
	Topic     string    `json:"topic"`
	Index     uint64    `json:"index"`
	ObjectKey string    `json:"object_key"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"` // hex SHA-256 of the payload
	CreatedAt time.Time `json:"created_at"`
}

// KeyRecord holds the current public key material and its administrator.
type KeyRecord struct {
	KeyMaterial   string    `json:"key_material"`
	Administrator Identity  `json:"administrator"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InstanceInfo describes a running sealed-log instance for deployment tooling.
type InstanceInfo struct {
	InstanceID  string    `json:"instance_id" yaml:"instance_id"`
	Initializer Identity  `json:"initializer" yaml:"initializer"`
	Profile     Profile   `json:"profile" yaml:"profile"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// MessageAcceptedEvent is emitted after a payload has been committed.
type MessageAcceptedEvent struct {
	Caller    Identity  `json:"caller"`
	Topic     string    `json:"topic"`
	Index     uint64    `json:"index"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageRejectedEvent is emitted when the classifier refuses a payload.
type MessageRejectedEvent struct {
	Caller    Identity  `json:"caller"`
	Topic     string    `json:"topic"`
	Reason    Reason    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// KeyMaterialChangedEvent is emitted after the key material was replaced.
type KeyMaterialChangedEvent struct {
	Administrator Identity  `json:"administrator"`
	Timestamp     time.Time `json:"timestamp"`
}

// AdministratorTransferredEvent is emitted after the administrator changed.
type AdministratorTransferredEvent struct {
	Previous  Identity  `json:"previous"`
	Current   Identity  `json:"current"`
	Timestamp time.Time `json:"timestamp"`
}
