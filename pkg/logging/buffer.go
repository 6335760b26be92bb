// Package logging sets up slog for bigsh and keeps recent records in memory
// for the shell's "show log" and the API log stream.
package logging

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Record is a formatted log record held in a Buffer.
type Record struct {
	Time    time.Time  `json:"time"`
	Level   slog.Level `json:"level"`
	Message string     `json:"message"`
	Attrs   string     `json:"attrs,omitempty"` // "k=v k=v"
}

// String renders r as one log line.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.Time.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	if r.Attrs != "" {
		b.WriteByte(' ')
		b.WriteString(r.Attrs)
	}
	return b.String()
}

// Buffer is a goroutine-safe ring of recent records.
type Buffer struct {
	mu    sync.RWMutex
	buf   []Record
	size  int
	head  int // next write position
	count int

	subMu sync.RWMutex
	subs  map[*Subscription]struct{}
}

// Subscription receives records added after it was created.
type Subscription struct {
	C <-chan Record
	c chan Record
	b *Buffer
}

// Close unsubscribes. C is not closed.
func (s *Subscription) Close() {
	s.b.subMu.Lock()
	delete(s.b.subs, s)
	s.b.subMu.Unlock()
}

// NewBuffer returns a buffer keeping the last size records.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{
		buf:  make([]Record, size),
		size: size,
		subs: make(map[*Subscription]struct{}),
	}
}

// Add appends rec, overwriting the oldest when full. Slow subscribers miss
// records rather than block logging.
func (b *Buffer) Add(rec Record) {
	b.mu.Lock()
	b.buf[b.head] = rec
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()

	b.subMu.RLock()
	for sub := range b.subs {
		select {
		case sub.c <- rec:
		default:
		}
	}
	b.subMu.RUnlock()
}

// Subscribe returns a subscription with a channel of the given capacity.
func (b *Buffer) Subscribe(capacity int) *Subscription {
	if capacity < 1 {
		capacity = 64
	}
	c := make(chan Record, capacity)
	sub := &Subscription{C: c, c: c, b: b}
	b.subMu.Lock()
	b.subs[sub] = struct{}{}
	b.subMu.Unlock()
	return sub
}

// Latest returns up to n records at or above floor, oldest first. n <= 0
// returns every matching record.
func (b *Buffer) Latest(n int, floor slog.Level) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Record
	start := (b.head - b.count + b.size) % b.size
	for i := 0; i < b.count; i++ {
		rec := b.buf[(start+i)%b.size]
		if rec.Level >= floor {
			out = append(out, rec)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Len returns the number of stored records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear drops every stored record.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
	clear(b.buf)
}
