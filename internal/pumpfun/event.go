package pumpfun

import (
	"encoding/base64"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const programDataPrefix = "Program data: "

// CreateEvent is the event pump.fun emits when a token is launched.
type CreateEvent struct {
	Name         string            `json:"name"`
	Symbol       string            `json:"symbol"`
	URI          string            `json:"uri"`
	Mint         solana.PublicKey  `json:"mint"`
	BondingCurve solana.PublicKey  `json:"bonding_curve"`
	User         solana.PublicKey  `json:"user"`
	Creator      *solana.PublicKey `json:"creator,omitempty"`
}

// DecodeCreateEvent returns the first CreateEvent found in a transaction's log lines.
func DecodeCreateEvent(logs []string) (*CreateEvent, bool) {
	for _, line := range logs {
		idx := strings.Index(line, programDataPrefix)
		if idx < 0 {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[idx+len(programDataPrefix):]))
		if err != nil || !createEventDiscriminator.Matches(payload) {
			continue
		}
		ev, err := decodeCreateEvent(payload[8:])
		if err != nil {
			continue
		}
		return ev, true
	}
	return nil, false
}

func decodeCreateEvent(data []byte) (*CreateEvent, error) {
	dec := bin.NewBorshDecoder(data)
	ev := &CreateEvent{}

	var err error
	if ev.Name, err = dec.ReadString(); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	if ev.Symbol, err = dec.ReadString(); err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	if ev.URI, err = dec.ReadString(); err != nil {
		return nil, fmt.Errorf("uri: %w", err)
	}

	keys := make([]solana.PublicKey, 0, 4)
	for dec.Remaining() >= 32 && len(keys) < 4 {
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		keys = append(keys, solana.PublicKeyFromBytes(b))
	}
	if len(keys) < 3 {
		return nil, fmt.Errorf("create event truncated: %d addresses", len(keys))
	}
	ev.Mint, ev.BondingCurve, ev.User = keys[0], keys[1], keys[2]
	if len(keys) == 4 {
		ev.Creator = &keys[3]
	}
	return ev, nil
}
