// Package transform implements reversible payload transforms (obfuscation,
// compression) that transports apply to packet bytes, alone or chained in a
// PayloadProcessor.
package transform

// Transform is a reversible byte transformation. Implementations must not
// modify their input slice.
type Transform interface {
	Apply(data []byte) ([]byte, error)
	Reverse(data []byte) ([]byte, error)
}
