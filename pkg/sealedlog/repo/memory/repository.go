package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// logKey partitions the message log by owner and topic.
type logKey struct {
	owner sealedlog.Identity
	topic string
}

// Repository implements sealedlog.Repository using in-memory storage
type Repository struct {
	mu        sync.RWMutex
	logs      map[logKey][]sealedlog.Message
	instance  *sealedlog.InstanceInfo
	keyRecord *sealedlog.KeyRecord
}

// New creates a new in-memory repository
func New() sealedlog.Repository {
	return &Repository{
		logs: make(map[logKey][]sealedlog.Message),
	}
}

// Message log operations

func (r *Repository) AppendMessage(ctx context.Context, msg *sealedlog.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := logKey{owner: msg.Owner, topic: msg.Topic}
	msg.Index = uint64(len(r.logs[key]))
	// Store a copy to avoid external modifications
	r.logs[key] = append(r.logs[key], *msg)
	return nil
}

func (r *Repository) CountMessages(ctx context.Context, owner sealedlog.Identity, topic string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return uint64(len(r.logs[logKey{owner: owner, topic: topic}])), nil
}

func (r *Repository) GetMessage(ctx context.Context, owner sealedlog.Identity, topic string, index uint64) (*sealedlog.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seq := r.logs[logKey{owner: owner, topic: topic}]
	if index >= uint64(len(seq)) {
		return nil, sealedlog.ErrIndexOutOfBounds
	}
	// Return a copy to prevent external modifications
	msg := seq[index]
	return &msg, nil
}

func (r *Repository) ListTopics(ctx context.Context, owner sealedlog.Identity) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := []string{}
	for key := range r.logs {
		if key.owner == owner {
			topics = append(topics, key.topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

// Instance and key record operations

func (r *Repository) Initialize(ctx context.Context, info *sealedlog.InstanceInfo, record *sealedlog.KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance != nil {
		return nil
	}
	infoCopy := *info
	recordCopy := *record
	r.instance = &infoCopy
	r.keyRecord = &recordCopy
	return nil
}

func (r *Repository) GetInstance(ctx context.Context) (*sealedlog.InstanceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.instance == nil {
		return nil, sealedlog.ErrInstanceNotFound
	}
	infoCopy := *r.instance
	return &infoCopy, nil
}

func (r *Repository) GetKeyRecord(ctx context.Context) (*sealedlog.KeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.keyRecord == nil {
		return nil, sealedlog.ErrKeyRecordNotFound
	}
	recordCopy := *r.keyRecord
	return &recordCopy, nil
}

func (r *Repository) SwapKeyRecord(ctx context.Context, expected sealedlog.Identity, next *sealedlog.KeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.keyRecord == nil {
		return sealedlog.ErrKeyRecordNotFound
	}
	if r.keyRecord.Administrator != expected {
		return sealedlog.ErrUnauthorized
	}
	recordCopy := *next
	r.keyRecord = &recordCopy
	return nil
}
