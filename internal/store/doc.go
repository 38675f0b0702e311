// Package store provides the relational table backend and the database
// manager that owns its connection.
//
// SQLite (github.com/mattn/go-sqlite3) and PostgreSQL (github.com/lib/pq)
// are supported. Each table maps to one SQL table whose primary key is the
// table's identity field; clause trees are rendered to SQL by querysql.
//
// # Connection model
//
// SQLite stores use a single connection: SQLite allows one writer, and a
// single connection keeps per-connection pragmas in force. While a
// transaction is open every statement runs on it until it ends.
//
// # Database configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - case_sensitive_like=ON: LIKE preserves case, as in-memory matching does
//
// # Transactions
//
// Transactions nest. Only the outermost EndTransaction commits, and only
// if every level called SetTransactionSuccessful; otherwise the whole
// transaction rolls back.
package store
