package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Discriminator is the 8-byte prefix Anchor programs use to tag
// instructions, accounts and events.
type Discriminator [8]byte

func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}

func (d Discriminator) Bytes() []byte {
	return d[:]
}

// Matches reports whether data starts with d.
func (d Discriminator) Matches(data []byte) bool {
	return len(data) >= len(d) && bytes.Equal(data[:len(d)], d[:])
}

// Compute returns sha256("<namespace>:<name>")[:8].
func Compute(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// InstructionDiscriminator tags an instruction, e.g. "buy".
func InstructionDiscriminator(name string) Discriminator {
	return Compute("global", name)
}

// AccountDiscriminator tags an account type, e.g. "BondingCurve".
func AccountDiscriminator(name string) Discriminator {
	return Compute("account", name)
}

// EventDiscriminator tags an emitted event, e.g. "CreateEvent".
func EventDiscriminator(name string) Discriminator {
	return Compute("event", name)
}

func FromBytes(data []byte) (Discriminator, error) {
	var d Discriminator
	if len(data) < len(d) {
		return d, fmt.Errorf("data too short for discriminator: need 8 bytes, got %d", len(data))
	}
	copy(d[:], data[:8])
	return d, nil
}

// Validate returns an error unless data starts with expected.
func Validate(data []byte, expected Discriminator) error {
	actual, err := FromBytes(data)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("discriminator mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
