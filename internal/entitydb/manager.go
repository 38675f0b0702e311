package entitydb

import (
	"context"
	"errors"
	"sync"
)

// ErrNoTransaction is returned when ending or marking a transaction that
// was never begun.
var ErrNoTransaction = errors.New("no transaction in progress")

// Manager is the database manager a Database delegates transactions and
// metadata to. store.Store implements it for relational engines.
type Manager interface {
	BeginTransaction(ctx context.Context) error
	SetTransactionSuccessful() error
	EndTransaction(ctx context.Context) error
	InTransaction() bool

	Version(ctx context.Context) (int, error)
	SetVersion(ctx context.Context, version int) error
	ReadOnly() bool
	Close() error
}

// NopManager is the manager of purely in-process databases. Transactions
// are advisory: nesting is tracked but nothing is rolled back.
type NopManager struct {
	mu       sync.Mutex
	depth    int
	version  int
	readOnly bool
}

var _ Manager = (*NopManager)(nil)

// NewNopManager creates an in-process manager.
func NewNopManager(readOnly bool) *NopManager {
	return &NopManager{readOnly: readOnly}
}

func (m *NopManager) BeginTransaction(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth++
	return nil
}

func (m *NopManager) SetTransactionSuccessful() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		return ErrNoTransaction
	}
	return nil
}

func (m *NopManager) EndTransaction(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.depth == 0 {
		return ErrNoTransaction
	}
	m.depth--
	return nil
}

func (m *NopManager) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth > 0
}

func (m *NopManager) Version(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

func (m *NopManager) SetVersion(_ context.Context, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = version
	return nil
}

func (m *NopManager) ReadOnly() bool {
	return m.readOnly
}

func (m *NopManager) Close() error {
	return nil
}
