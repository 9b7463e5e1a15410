// Package identifier issues the human-readable sequential codes used across
// the hospital: patient codes, appointment tokens and generated staff
// credentials.
package identifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillcrest/hms/internal/platform/db"
)

// Counter names.
const (
	PatientCounter = "patient"
	TokenCounter   = "appointment_token"
)

// CredentialCounter is the per-role counter behind generated usernames.
func CredentialCounter(role string) string {
	return "credential:" + role
}

func PatientCode(n int64) string { return fmt.Sprintf("PT%04d", n) }

func Token(n int64) string { return fmt.Sprintf("T%03d", n) }

// Credentials returns the generated username and initial password for the
// n-th account with the given username prefix.
func Credentials(prefix string, n int64) (username, password string) {
	return fmt.Sprintf("%s%03d", prefix, n), fmt.Sprintf("pass%03d", n)
}

// Sequencer hands out strictly increasing values per counter name.
type Sequencer interface {
	Next(ctx context.Context, name string) (int64, error)
}

type pgSequencer struct {
	pool *pgxpool.Pool
}

// NewPGSequencer returns a Sequencer backed by the sequence_counter table.
// Called inside db.Transactor.WithTx, the counter row stays locked until the
// surrounding transaction ends, so concurrent creators are serialized and a
// rolled-back creation gives its number back.
func NewPGSequencer(pool *pgxpool.Pool) Sequencer {
	return &pgSequencer{pool: pool}
}

func (s *pgSequencer) Next(ctx context.Context, name string) (int64, error) {
	var v int64
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO sequence_counter (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequence_counter.value + 1
		RETURNING value`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return v, nil
}

// MemorySequencer is an in-process Sequencer for tests and tooling.
type MemorySequencer struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{values: make(map[string]int64)}
}

func (s *MemorySequencer) Next(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name]++
	return s.values[name], nil
}
