package sealedlog

import (
	"context"
)

// Service defines the main interface for the sealed-log library
type Service interface {
	// Message log operations
	Submit(ctx context.Context, caller Identity, topic string, payload []byte) (*Message, error)
	Count(ctx context.Context, owner Identity, topic string) (uint64, error)
	Read(ctx context.Context, owner Identity, topic string, index uint64) ([]byte, error)
	ListTopics(ctx context.Context, owner Identity) ([]string, error)

	// Key record operations
	KeyRecord(ctx context.Context) (*KeyRecord, error)
	SetKeyMaterial(ctx context.Context, caller Identity, newKey string) error
	TransferAdministrator(ctx context.Context, caller, newAdmin Identity) error

	// Instance information
	Instance(ctx context.Context) (*InstanceInfo, error)
	Profile() Profile
	Classifier() Classifier
}
