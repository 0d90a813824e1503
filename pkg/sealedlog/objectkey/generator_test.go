package objectkey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatGenerator(t *testing.T) {
	g := NewFlatGenerator()
	assert.Equal(t, "M/abc", g.GenerateKey("alice", "inbox", "abc"))
}

func TestShardedGenerator(t *testing.T) {
	g := NewShardedGenerator()

	key := g.GenerateKey("0xAlice", "inbox/../etc", "6f1c2b7e-1d4a-4a4e-9d3b-2b1f0c9e8a77")
	parts := strings.Split(key, "/")

	assert.Len(t, parts, 5)
	assert.Equal(t, "messages", parts[0])
	assert.Len(t, parts[1], 2)
	assert.Len(t, parts[2], 16)
	assert.True(t, strings.HasPrefix(parts[2], parts[1]))
	assert.Len(t, parts[3], 16)
	assert.Equal(t, "6f1c2b7e-1d4a-4a4e-9d3b-2b1f0c9e8a77", parts[4])
	assert.NotContains(t, key, "..")
}

func TestShardedGenerator_Deterministic(t *testing.T) {
	g := NewShardedGenerator()

	a := g.GenerateKey("alice", "t", "m1")
	b := g.GenerateKey("alice", "t", "m1")
	c := g.GenerateKey("alice", "t2", "m1")
	d := g.GenerateKey("bob", "t", "m1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestShardedGenerator_ClampsLengths(t *testing.T) {
	g := &ShardedGenerator{ShardLength: 100, HashLength: 1000}
	key := g.GenerateKey("alice", "t", "m1")
	parts := strings.Split(key, "/")
	assert.Len(t, parts[2], 64)
	assert.Equal(t, parts[1], parts[2])
}

func TestCustomFuncGenerator(t *testing.T) {
	g := NewCustomFuncGenerator(func(owner, topic, messageID string) string {
		return owner + "-" + topic + "-" + messageID
	})
	assert.Equal(t, "a-b-c", g.GenerateKey("a", "b", "c"))
}
