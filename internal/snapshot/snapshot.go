package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qikhub/walletledger/internal/keys"
	"github.com/qikhub/walletledger/internal/ledger"
	"github.com/qikhub/walletledger/internal/wallet"
)

// Version is the current encoding version of State.
const Version = 1

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet.
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrUnsupportedVersion is returned when decoding a snapshot written by a newer release.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

// State is a verbatim copy of every registry held by the payments service.
type State struct {
	Version      int                                 `json:"version"`
	TakenAt      time.Time                           `json:"taken_at"`
	Wallets      map[string]map[string]wallet.Wallet `json:"wallets"`
	Transactions map[string]ledger.Transaction       `json:"transactions"`
	OwnerIndex   map[string][]string                 `json:"owner_index"`
	Keys         map[string]keys.KeyRecord           `json:"keys"`
}

// Store persists snapshots across restarts.
type Store interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (State, error)
}

// Encode serializes state as JSON.
func Encode(state State) ([]byte, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, nil
}

// Decode parses a JSON snapshot and checks its version.
func Decode(payload []byte) (State, error) {
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if state.Version > Version {
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}
