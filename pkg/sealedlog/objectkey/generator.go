// Package objectkey lays out payload blobs in storage backends.
package objectkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FlatGenerator stores every payload directly under a single prefix:
// M/{message_id}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(owner, topic, messageID string) string {
	return fmt.Sprintf("M/%s", messageID)
}

// ShardedGenerator provides Git-style sharding keyed on the owner and topic.
// Owners and topics are arbitrary strings, so both are hashed before they
// reach a path:
// messages/{owner_hash[:2]}/{owner_hash}/{topic_hash}/{message_id}
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
	// HashLength controls how many hex characters of each hash are kept (default: 16)
	HashLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{
		ShardLength: 2,
		HashLength:  16,
	}
}

func (g *ShardedGenerator) GenerateKey(owner, topic, messageID string) string {
	hashLen := g.HashLength
	if hashLen <= 0 || hashLen > sha256.Size*2 {
		hashLen = sha256.Size * 2
	}
	shardLen := g.ShardLength
	if shardLen < 0 || shardLen > hashLen {
		shardLen = hashLen
	}

	ownerHash := hashComponent(owner)[:hashLen]
	topicHash := hashComponent(topic)[:hashLen]

	return fmt.Sprintf("messages/%s/%s/%s/%s",
		ownerHash[:shardLen], ownerHash, topicHash, sanitizePathComponent(messageID))
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(owner, topic, messageID string) string
}

func NewCustomFuncGenerator(fn func(owner, topic, messageID string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(owner, topic, messageID string) string {
	return g.GenerateFunc(owner, topic, messageID)
}

func hashComponent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		" ", "_",
	)
	return replacer.Replace(component)
}
