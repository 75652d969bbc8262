package badger

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/poiesic/vellum/core"
)

// Key prefixes for different data types.
// Names are encoded as NUL-joined segments; segments never contain NUL and
// are never empty, so a double NUL cleanly terminates an encoded name.
const (
	objectMetaPrefix     = "objm\x00"
	objectRetainedPrefix = "objr\x00"
	objectChunkPrefix    = "objc\x00"
	objectChildPrefix    = "objp\x00"
	objectVersionSeq     = "objseq"
	queuePrefix          = "q\x00"
	queueKeyPrefix       = "qk\x00"
	queueSeq             = "qseq"
	checkpointPrefix     = "chkpt\x00"
)

const nameTerminator = "\x00\x00"

// encodeName joins name segments with NUL.
func encodeName(name core.ObjectName) string {
	return strings.Join(name, "\x00")
}

// decodeName reverses encodeName.
func decodeName(encoded []byte) core.ObjectName {
	if len(encoded) == 0 {
		return core.ObjectName{}
	}
	return core.ObjectName(strings.Split(string(encoded), "\x00"))
}

// makeMetaKey generates the key of the current metadata row of name.
// Format: prefix name
func makeMetaKey(name core.ObjectName) []byte {
	return []byte(objectMetaPrefix + encodeName(name))
}

// makeRetainedKey generates the key of a superseded metadata row kept for rollback.
// Format: prefix name \0\0 version
func makeRetainedKey(name core.ObjectName, version uint64) []byte {
	return binary.BigEndian.AppendUint64(makeRetainedNamePrefix(name), version)
}

// makeRetainedNamePrefix generates the partial key covering every retained row of name.
func makeRetainedNamePrefix(name core.ObjectName) []byte {
	return []byte(objectRetainedPrefix + encodeName(name) + nameTerminator)
}

// makeChunkKey generates the key of one content chunk.
// Format: prefix name \0\0 version sequence
// Both integers are BigEndian so lexicographic order is chunk order.
func makeChunkKey(name core.ObjectName, version, seq uint64) []byte {
	buf := makeChunkVersionPrefix(name, version)
	return binary.BigEndian.AppendUint64(buf, seq)
}

// makeChunkVersionPrefix generates the partial key covering the chunks of one version.
func makeChunkVersionPrefix(name core.ObjectName, version uint64) []byte {
	return binary.BigEndian.AppendUint64(makeChunkNamePrefix(name), version)
}

// makeChunkNamePrefix generates the partial key covering every chunk of name.
func makeChunkNamePrefix(name core.ObjectName) []byte {
	return []byte(objectChunkPrefix + encodeName(name) + nameTerminator)
}

// makeChildKey generates the prefix index row recording that prefix has a
// child segment suffix.
// Format: prefix-table prefix \0\0 suffix
func makeChildKey(prefix core.ObjectName, suffix string) []byte {
	return append(makeChildrenPrefix(prefix), suffix...)
}

// makeChildrenPrefix generates the partial key covering every child row of prefix.
func makeChildrenPrefix(prefix core.ObjectName) []byte {
	return []byte(objectChildPrefix + encodeName(prefix) + nameTerminator)
}

// childSuffix extracts the child segment from a prefix index row.
func childSuffix(key, childrenPrefix []byte) string {
	return string(bytes.TrimPrefix(key, childrenPrefix))
}

// makeQueueKey generates the key of a queue element.
// Format: prefix sequence
func makeQueueKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(queuePrefix), seq)
}

// makeQueueIndexKey generates the per-key index row of a queue element.
// Format: prefix key \0 sequence
func makeQueueIndexKey(key string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(makeQueueIndexPrefix(key), seq)
}

// makeQueueIndexPrefix generates the partial key covering every element queued for key.
func makeQueueIndexPrefix(key string) []byte {
	return []byte(queueKeyPrefix + key + "\x00")
}

// makeCheckpointKey generates a key for rebuild checkpoints.
func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + name)
}
