package common

import "context"

// Database is the storage abstraction the grid API runs on. Rows travel as
// column → value maps so the same handler serves every registered model.
type Database interface {
	NewSelect() SelectQuery
	NewInsert() InsertQuery
	NewUpdate() UpdateQuery
	NewDelete() DeleteQuery
	RunInTransaction(ctx context.Context, fn func(Database) error) error
}

type SelectQuery interface {
	Table(table string) SelectQuery
	ColumnExpr(query string, args ...interface{}) SelectQuery
	Where(query string, args ...interface{}) SelectQuery
	Join(query string, args ...interface{}) SelectQuery
	Order(order string) SelectQuery
	Limit(n int) SelectQuery
	Offset(n int) SelectQuery

	// Scan loads rows into dest, a *[]map[string]interface{}.
	Scan(ctx context.Context, dest *[]map[string]interface{}) error
	Count(ctx context.Context) (int, error)
}

type InsertQuery interface {
	Table(table string) InsertQuery
	Value(column string, value interface{}) InsertQuery
	Exec(ctx context.Context) (Result, error)
}

type UpdateQuery interface {
	Table(table string) UpdateQuery
	SetMap(values map[string]interface{}) UpdateQuery
	Where(query string, args ...interface{}) UpdateQuery
	Exec(ctx context.Context) (Result, error)
}

type DeleteQuery interface {
	Table(table string) DeleteQuery
	Where(query string, args ...interface{}) DeleteQuery
	Exec(ctx context.Context) (Result, error)
}

type Result interface {
	RowsAffected() int64
}

// TableNameProvider is implemented by models with an explicit table name.
type TableNameProvider interface {
	TableName() string
}
