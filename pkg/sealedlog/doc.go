// Package sealedlog provides an append-only, multi-tenant message log that
// only admits payloads which look encrypted.
//
// Messages are partitioned by the submitting identity and a caller-chosen
// topic. Every (identity, topic) pair owns a sequence with contiguous indices
// starting at 0. Writes go through a Classifier that rejects short payloads
// and payloads that read like text or repeat too few byte values. Reads never
// touch the classifier.
//
// Classifier Profiles
//
// Three tiers share one contract. ProfileFull inspects a 100 byte prefix and
// histograms the whole payload. ProfileLight inspects a 32 byte prefix and
// samples at most 64 positions, so its cost does not grow with the payload.
// ProfileNone admits everything. Full and Light may disagree on borderline
// input; both agree on clearly random and clearly repetitive data.
//
// Key Record
//
// The log also holds a single key record: the current public key material and
// the one administrator allowed to rotate it or hand the role to somebody
// else. The record is created when the service is first initialized and is
// never left without an administrator.
//
// Persistence is split in two. A Repository keeps message records and the key
// record; a BlobStore keeps the payload bytes. Implementations live under
// repo/ and storage/.
package sealedlog
