package kpi

import "context"

// Queries are the reads and writes of a single transition. Inside InTx they
// run on the transaction.
type Queries interface {
	Get(ctx context.Context, id string) (KPISet, error)
	ByQuarter(ctx context.Context, employeeID, quarter string) (KPISet, error)
	Insert(ctx context.Context, set *KPISet) error
	// Update writes set only if the stored version still equals expectedVersion.
	Update(ctx context.Context, set *KPISet, expectedVersion int) error
	Delete(ctx context.Context, id string, expectedVersion int) error
}

type StoreAPI interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	List(ctx context.Context, filter Filter, scope Scope) (Page, error)
	InsertLink(ctx context.Context, link Link) error
	Links(ctx context.Context, kpiSetID string) ([]Link, error)
}
