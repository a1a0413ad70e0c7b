package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories accept NoTX for the non-transactional
// path.
type Tx interface{}

var NoTX Tx

// TransactionManager executes a function inside a storage transaction without
// leaking transaction types into the use-case interfaces. The quota ledger
// relies on it to make the usage recount and the consumption stamp one atomic
// unit.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
