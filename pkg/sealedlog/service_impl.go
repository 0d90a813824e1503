package sealedlog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/sealed-log/pkg/sealedlog/objectkey"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	classifier Classifier
	eventSinks MultiEventSink
	keyGen     KeyGenerator
	logger     *slog.Logger
	now        func() time.Time

	initialKey   string
	initialAdmin Identity
	initialize   bool

	// writeMu linearizes every mutating call made through this service.
	writeMu sync.Mutex
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the payload storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithClassifier sets the admission classifier. Defaults to FullClassifier.
func WithClassifier(classifier Classifier) Option {
	return func(s *service) {
		s.classifier = classifier
	}
}

// WithEventSink adds an event sink. May be given more than once.
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		if sink != nil {
			s.eventSinks = append(s.eventSinks, sink)
		}
	}
}

// WithKeyGenerator sets the blob key layout
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(s *service) {
		s.keyGen = gen
	}
}

// WithLogger sets the logger used for non-fatal failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithInitialKeyRecord creates the key record on first start. It has no
// effect when the repository already holds an initialized instance.
func WithInitialKeyRecord(keyMaterial string, admin Identity) Option {
	return func(s *service) {
		s.initialKey = keyMaterial
		s.initialAdmin = admin
		s.initialize = true
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		classifier: FullClassifier{},
		keyGen:     objectkey.NewShardedGenerator(),
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	ctx := context.Background()
	if s.initialize {
		if s.initialAdmin.IsZero() {
			return nil, fmt.Errorf("initial administrator: %w", ErrInvalidTarget)
		}
		now := s.now()
		info := &InstanceInfo{
			InstanceID:  uuid.New().String(),
			Initializer: s.initialAdmin,
			Profile:     s.classifier.Profile(),
			CreatedAt:   now,
		}
		record := &KeyRecord{
			KeyMaterial:   s.initialKey,
			Administrator: s.initialAdmin,
			UpdatedAt:     now,
		}
		if err := s.repository.Initialize(ctx, info, record); err != nil {
			return nil, fmt.Errorf("failed to initialize instance: %w", err)
		}
	}

	if _, err := s.repository.GetKeyRecord(ctx); err != nil {
		return nil, fmt.Errorf("failed to load key record: %w", err)
	}

	return s, nil
}

// Message log operations

func (s *service) Submit(ctx context.Context, caller Identity, topic string, payload []byte) (*Message, error) {
	if caller.IsZero() {
		return nil, &MessageError{Owner: caller, Topic: topic, Op: "submit", Err: ErrUnauthorized}
	}

	// The zero-validation tier never runs the classifier.
	if s.classifier.Profile() != ProfileNone {
		verdict := s.classifier.Evaluate(payload)
		if !verdict.Accepted {
			s.emit(ctx, "message_rejected", func(sink EventSink) error {
				return sink.MessageRejected(ctx, MessageRejectedEvent{
					Caller:    caller,
					Topic:     topic,
					Reason:    verdict.Reason,
					Timestamp: s.now(),
				})
			})
			return nil, &RejectedError{Reason: verdict.Reason}
		}
	}

	sum := sha256.Sum256(payload)
	objectKey := s.keyGen.GenerateKey(string(caller), topic, uuid.New().String())

	// The blob is invisible until its record is appended, so uploading
	// outside the write lock cannot expose partial state.
	if err := s.blobStore.Upload(ctx, objectKey, bytes.NewReader(payload)); err != nil {
		return nil, &StorageError{Key: objectKey, Op: "upload", Err: err}
	}

	msg := &Message{
		Owner:     caller,
		Topic:     topic,
		ObjectKey: objectKey,
		Size:      int64(len(payload)),
		Checksum:  hex.EncodeToString(sum[:]),
	}

	s.writeMu.Lock()
	msg.CreatedAt = s.now()
	err := s.repository.AppendMessage(ctx, msg)
	s.writeMu.Unlock()

	if err != nil {
		if delErr := s.blobStore.Delete(ctx, objectKey); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to remove orphaned payload",
				"object_key", objectKey, "error", delErr)
		}
		return nil, &MessageError{Owner: caller, Topic: topic, Op: "append", Err: err}
	}

	s.emit(ctx, "message_accepted", func(sink EventSink) error {
		return sink.MessageAccepted(ctx, MessageAcceptedEvent{
			Caller:    caller,
			Topic:     topic,
			Index:     msg.Index,
			Timestamp: msg.CreatedAt,
		})
	})

	out := *msg
	return &out, nil
}

func (s *service) Count(ctx context.Context, owner Identity, topic string) (uint64, error) {
	return s.repository.CountMessages(ctx, owner, topic)
}

func (s *service) Read(ctx context.Context, owner Identity, topic string, index uint64) ([]byte, error) {
	msg, err := s.repository.GetMessage(ctx, owner, topic, index)
	if err != nil {
		return nil, &MessageError{Owner: owner, Topic: topic, Op: "read", Err: err}
	}

	rc, err := s.blobStore.Download(ctx, msg.ObjectKey)
	if err != nil {
		return nil, &StorageError{Key: msg.ObjectKey, Op: "download", Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StorageError{Key: msg.ObjectKey, Op: "download", Err: err}
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != msg.Checksum {
		s.logger.ErrorContext(ctx, "Stored payload does not match checksum",
			"owner", owner, "topic", topic, "index", index, "object_key", msg.ObjectKey)
		return nil, &MessageError{Owner: owner, Topic: topic, Op: "read", Err: ErrIntegrity}
	}

	return data, nil
}

func (s *service) ListTopics(ctx context.Context, owner Identity) ([]string, error) {
	return s.repository.ListTopics(ctx, owner)
}

// Key record operations

func (s *service) KeyRecord(ctx context.Context) (*KeyRecord, error) {
	return s.repository.GetKeyRecord(ctx)
}

func (s *service) SetKeyMaterial(ctx context.Context, caller Identity, newKey string) error {
	next, err := s.swapKeyRecord(ctx, caller, func(current *KeyRecord) *KeyRecord {
		return &KeyRecord{
			KeyMaterial:   newKey,
			Administrator: caller,
			UpdatedAt:     s.now(),
		}
	})
	if err != nil {
		return err
	}

	s.emit(ctx, "key_material_changed", func(sink EventSink) error {
		return sink.KeyMaterialChanged(ctx, KeyMaterialChangedEvent{
			Administrator: caller,
			Timestamp:     next.UpdatedAt,
		})
	})
	return nil
}

func (s *service) TransferAdministrator(ctx context.Context, caller, newAdmin Identity) error {
	if newAdmin.IsZero() {
		return ErrInvalidTarget
	}

	next, err := s.swapKeyRecord(ctx, caller, func(current *KeyRecord) *KeyRecord {
		return &KeyRecord{
			KeyMaterial:   current.KeyMaterial,
			Administrator: newAdmin,
			UpdatedAt:     s.now(),
		}
	})
	if err != nil {
		return err
	}

	s.emit(ctx, "administrator_transferred", func(sink EventSink) error {
		return sink.AdministratorTransferred(ctx, AdministratorTransferredEvent{
			Previous:  caller,
			Current:   newAdmin,
			Timestamp: next.UpdatedAt,
		})
	})
	return nil
}

// swapKeyRecord replaces the key record under the write lock if caller is the
// current administrator. Events are emitted by the caller after the lock is
// released.
func (s *service) swapKeyRecord(ctx context.Context, caller Identity, build func(current *KeyRecord) *KeyRecord) (*KeyRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.repository.GetKeyRecord(ctx)
	if err != nil {
		return nil, err
	}
	if current.Administrator != caller {
		return nil, ErrUnauthorized
	}

	next := build(current)
	if err := s.repository.SwapKeyRecord(ctx, caller, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Instance information

// Instance returns the stored instance metadata with the profile this
// service is running now, which may differ from the one recorded at
// initialization.
func (s *service) Instance(ctx context.Context) (*InstanceInfo, error) {
	info, err := s.repository.GetInstance(ctx)
	if err != nil {
		return nil, err
	}
	out := *info
	out.Profile = s.classifier.Profile()
	return &out, nil
}

func (s *service) Profile() Profile {
	return s.classifier.Profile()
}

func (s *service) Classifier() Classifier {
	return s.classifier
}

// emit delivers an event to all sinks. Sink failures are logged and never
// fail the operation that produced the event.
//
// emit is never called with writeMu held, so a slow sink cannot stall
// writers. Concurrent events may therefore arrive out of commit order;
// MessageAccepted carries Index so consumers can reorder.
func (s *service) emit(ctx context.Context, name string, deliver func(EventSink) error) {
	if len(s.eventSinks) == 0 {
		return
	}
	if err := deliver(s.eventSinks); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Event delivery failed", "event", name, "error", err)
	}
}
