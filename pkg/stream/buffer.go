// Package stream implements the streaming response pipeline: chunk
// buffering at natural language boundaries, run event dispatch with
// tool-call resolution, and the SSE transport to the browser.
package stream

import (
	"strings"

	"greenstorm/pkg/telemetry"
)

const (
	// DefaultTargetChunkSize is the minimum accumulated length before a
	// cut is considered.
	DefaultTargetChunkSize = 100
	// DefaultMaxQueue bounds the ready queue; overflow drops the oldest
	// undelivered chunk, favoring recency over completeness.
	DefaultMaxQueue = 100
)

// Buffer accumulates raw text deltas and cuts deliverable chunks at
// sentence/clause boundaries. No I/O; not safe for concurrent use. The
// dispatcher drives it from a single goroutine.
type Buffer struct {
	queue      []string
	acc        strings.Builder
	targetSize int
	maxQueue   int
}

// NewBuffer returns a Buffer with the given target chunk size and queue
// bound; zero values select the defaults.
func NewBuffer(targetSize, maxQueue int) *Buffer {
	if targetSize <= 0 {
		targetSize = DefaultTargetChunkSize
	}
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &Buffer{targetSize: targetSize, maxQueue: maxQueue}
}

// AddText appends a raw fragment. Literal "\n" escapes are normalized to
// real newlines before buffering. A cut is attempted whenever the
// accumulator reaches the target size and contains at least one of
// `. , ? !`.
func (b *Buffer) AddText(fragment string) {
	if fragment == "" {
		return
	}
	b.acc.WriteString(strings.ReplaceAll(fragment, `\n`, "\n"))

	text := b.acc.String()
	if !b.shouldCut(text) {
		return
	}
	bp := findBreakPoint(text, b.targetSize)
	if bp < len(text) {
		b.push(text[:bp])
		b.acc.Reset()
		b.acc.WriteString(text[bp:])
	} else {
		b.push(text)
		b.acc.Reset()
	}
}

// NextReadyChunk pops the oldest completed chunk, if any.
func (b *Buffer) NextReadyChunk() (string, bool) {
	if len(b.queue) == 0 {
		return "", false
	}
	c := b.queue[0]
	b.queue = b.queue[1:]
	return c, true
}

// Flush forces any remaining accumulated text into the ready queue. Used
// at stream end; whitespace-only remainders are discarded.
func (b *Buffer) Flush() {
	if b.acc.Len() == 0 {
		return
	}
	b.push(b.acc.String())
	b.acc.Reset()
}

// Len reports the number of ready chunks.
func (b *Buffer) Len() int { return len(b.queue) }

func (b *Buffer) push(chunk string) {
	if strings.TrimSpace(chunk) == "" {
		return
	}
	b.queue = append(b.queue, chunk)
	if len(b.queue) > b.maxQueue {
		b.queue = b.queue[1:]
		telemetry.ChunksDropped.Inc()
	}
}

func (b *Buffer) shouldCut(text string) bool {
	if len(text) < b.targetSize {
		return false
	}
	return strings.ContainsAny(text, ".,?!")
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// findBreakPoint picks the cut position. Sentence terminators followed by
// whitespace are preferred boundaries; commas followed by whitespace are
// secondary (cut lands after the whitespace, last candidate wins within a
// tier). With no punctuation boundary it falls back to the first
// whitespace at or beyond targetSize, then the last whitespace anywhere,
// then the whole text. All boundary characters are ASCII, so byte
// positions are rune-safe.
func findBreakPoint(text string, targetSize int) int {
	lastSentence, lastComma := -1, -1
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if isSpace(text[i+1]) {
				lastSentence = i + 2
			}
		case ',':
			if isSpace(text[i+1]) {
				lastComma = i + 2
			}
		}
	}
	if lastSentence >= 0 {
		return lastSentence
	}
	if lastComma >= 0 {
		return lastComma
	}

	var spaces []int
	for i := 0; i < len(text); i++ {
		if isSpace(text[i]) {
			spaces = append(spaces, i)
		}
	}
	for _, i := range spaces {
		if i >= targetSize {
			return i + 1
		}
	}
	if len(spaces) > 0 {
		return spaces[len(spaces)-1] + 1
	}
	return len(text)
}
