package session

import (
	"errors"
	"sync"

	"github.com/room4-2/gensyn-guide/audio"
)

// ErrQueueFull is returned when a pending chunk would exceed the queue's size
var ErrQueueFull = errors.New("pending audio queue full")

// ChunkQueue holds outbound audio sent before the live stream is open, in
// send order, until it is flushed onto the stream
type ChunkQueue struct {
	chunks    []audio.Chunk
	totalSize int
	maxSize   int
	mu        sync.Mutex
}

// NewChunkQueue creates a queue holding at most maxSize encoded bytes
func NewChunkQueue(maxSize int) *ChunkQueue {
	return &ChunkQueue{
		chunks:  make([]audio.Chunk, 0),
		maxSize: maxSize,
	}
}

// Append queues a chunk
// Returns ErrQueueFull if adding the chunk would exceed maxSize
func (q *ChunkQueue) Append(chunk audio.Chunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	newSize := q.totalSize + len(chunk)
	if newSize > q.maxSize {
		return ErrQueueFull
	}

	q.chunks = append(q.chunks, chunk)
	q.totalSize = newSize
	return nil
}

// Flush returns every queued chunk in order and empties the queue
func (q *ChunkQueue) Flush() []audio.Chunk {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return nil
	}

	result := q.chunks
	q.chunks = make([]audio.Chunk, 0)
	q.totalSize = 0

	return result
}

// Clear empties the queue without returning data
func (q *ChunkQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.chunks = make([]audio.Chunk, 0)
	q.totalSize = 0
}

// Size returns the current total queued bytes
func (q *ChunkQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalSize
}

// IsEmpty returns true if nothing is queued
func (q *ChunkQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks) == 0
}

// Len returns the number of queued chunks
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
