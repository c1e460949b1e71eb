// Package txn scopes database transactions across nested calls and
// multiple datasources.
//
// A Router owns one connection pool per named datasource. A Manager runs
// units of work against a datasource:
//
//	err := m.Run(ctx, "default", func(ctx context.Context) error {
//		q, _ := m.Router().Querier(ctx, "default")
//		_, err := q.ExecContext(ctx, "UPDATE account SET balance = balance - ? WHERE id = ?", 10, 1)
//		return err
//	})
//
// The first Run on a context begins a transaction and stores its Handle in
// the context passed to the function. Nested Run calls on the same
// datasource that receive that context join the handle instead of beginning
// a new one; only the outermost Run commits or rolls back. Contexts that do
// not descend from the outermost Run never see the handle, so concurrent
// unrelated call trees stay isolated.
//
// Resolution:
//   - fn returns nil: commit.
//   - fn returns an error the classifier accepts: rollback.
//   - fn returns an error the classifier rejects: commit.
//   - fn panics: rollback, then re-panic.
//
// The error returned by fn is returned from Run unchanged. The default
// classifier rolls back every error.
//
// Commit and rollback are not exported: a Handle can only be resolved by
// the Manager that began it.
package txn
