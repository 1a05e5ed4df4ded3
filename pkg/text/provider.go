// Package text converts legacy color-coded messages into the rendered
// representation used by the sidebar engine, and provides the title frame
// iterator contract.
package text

// Provider converts a legacy color-coded message into the generic rendered
// representation R used throughout the engine.
type Provider[R any] interface {
	FromLegacyMessage(msg string) (R, error)
}
