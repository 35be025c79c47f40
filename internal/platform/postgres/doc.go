// Package postgres provides PostgreSQL implementations of the store
// interfaces, plus consistent mapping of driver errors to store errors.
package postgres
