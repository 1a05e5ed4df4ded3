package text

import (
	sberrors "github.com/odvcencio/sideboard/pkg/errors"
)

// Iterator produces successive title frames. Next is advanced externally,
// once per scheduler tick; implementations may cycle forever. Iterators are
// driven by a single ticker and need not be safe for concurrent use.
type Iterator interface {
	Next() string
}

// Frame is a single animation frame shown for Ticks consecutive ticks.
type Frame struct {
	Text  string
	Ticks int
}

// FrameIterator cycles through a fixed list of frames.
type FrameIterator struct {
	frames    []Frame
	pos       int
	remaining int
}

// NewFrameIterator creates an iterator over the given frames. Frames with
// Ticks < 1 are shown for one tick.
func NewFrameIterator(frames ...Frame) (*FrameIterator, error) {
	if len(frames) == 0 {
		return nil, sberrors.New(sberrors.ErrCodeInvalidInput, "frame iterator requires at least one frame")
	}
	normalized := make([]Frame, len(frames))
	copy(normalized, frames)
	for i := range normalized {
		if normalized[i].Ticks < 1 {
			normalized[i].Ticks = 1
		}
	}
	return &FrameIterator{
		frames:    normalized,
		remaining: normalized[0].Ticks,
	}, nil
}

// FramesOf builds a FrameIterator from plain strings, one tick each.
func FramesOf(texts ...string) (*FrameIterator, error) {
	frames := make([]Frame, len(texts))
	for i, t := range texts {
		frames[i] = Frame{Text: t, Ticks: 1}
	}
	return NewFrameIterator(frames...)
}

func (it *FrameIterator) Next() string {
	text := it.frames[it.pos].Text
	it.remaining--
	if it.remaining <= 0 {
		it.pos = (it.pos + 1) % len(it.frames)
		it.remaining = it.frames[it.pos].Ticks
	}
	return text
}

// Static is an Iterator that always produces the same frame.
type Static string

func (s Static) Next() string { return string(s) }
