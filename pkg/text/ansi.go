package text

import (
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// ANSI renders legacy messages as ANSI-styled strings.
type ANSI struct {
	output *termenv.Output
}

// NewANSI creates an ANSI provider with a true-color profile.
func NewANSI() *ANSI {
	return NewANSIWithProfile(termenv.TrueColor)
}

// NewANSIWithProfile creates an ANSI provider rendering with the given
// color profile, independent of the process's terminal.
func NewANSIWithProfile(profile termenv.Profile) *ANSI {
	return &ANSI{
		output: termenv.NewOutput(io.Discard, termenv.WithProfile(profile)),
	}
}

func (a *ANSI) FromLegacyMessage(msg string) (string, error) {
	var sb strings.Builder
	for _, sp := range parseLegacy(msg) {
		styled := a.output.String(sp.text)
		if sp.color != "" {
			styled = styled.Foreground(a.output.Color(sp.color))
		}
		if sp.bold {
			styled = styled.Bold()
		}
		if sp.italic {
			styled = styled.Italic()
		}
		if sp.underline {
			styled = styled.Underline()
		}
		if sp.strike {
			styled = styled.CrossOut()
		}
		sb.WriteString(styled.String())
	}
	return sb.String(), nil
}

// Plain renders legacy messages with all codes stripped.
type Plain struct{}

func (Plain) FromLegacyMessage(msg string) (string, error) {
	var sb strings.Builder
	for _, sp := range parseLegacy(msg) {
		sb.WriteString(sp.text)
	}
	return sb.String(), nil
}
