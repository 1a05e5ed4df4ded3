package text

import (
	sberrors "github.com/odvcencio/sideboard/pkg/errors"
)

// NewSlideAnimation would produce a sliding-window animation over text. The
// frame generation algorithm is not implemented yet; constructing one fails
// fast instead of producing wrong frames.
func NewSlideAnimation(text string) (Iterator, error) {
	return nil, sberrors.New(sberrors.ErrCodeNotImplemented, "text slide animation is not implemented").
		WithContext("text", text)
}
