package leave

import "context"

// Queries are the reads and writes a single transition needs. Inside InTx
// they run on the transaction and Get and Balance lock the row where the
// database supports it.
type Queries interface {
	Get(ctx context.Context, id string) (LeaveRequest, error)
	Insert(ctx context.Context, req *LeaveRequest) error
	// Update writes req only if the stored version still equals expectedVersion.
	Update(ctx context.Context, req *LeaveRequest, expectedVersion int) error
	Balance(ctx context.Context, employeeID string, category Category) (Balance, error)
	SaveBalance(ctx context.Context, balance Balance) error
	RecordAdjustment(ctx context.Context, adj BalanceAdjustment) error
}

type StoreAPI interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	List(ctx context.Context, filter Filter, scope Scope) (Page, error)
	ListPending(ctx context.Context) ([]LeaveRequest, error)
	Balances(ctx context.Context, employeeID string) ([]Balance, error)
	Adjustments(ctx context.Context, employeeID string) ([]BalanceAdjustment, error)
	// SeedBalance inserts an opening balance unless one exists. It reports whether a row was written.
	SeedBalance(ctx context.Context, balance Balance) (bool, error)
}

// Cipher seals medical details at rest.
type Cipher interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}
