package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsPgUniqueViolation(t *testing.T) {
	t.Run("returns true for unique violation code", func(t *testing.T) {
		assert.True(t, isPgUniqueViolation(&pgconn.PgError{Code: "23505"}))
	})

	t.Run("returns false for other pg error codes", func(t *testing.T) {
		assert.False(t, isPgUniqueViolation(&pgconn.PgError{Code: "23503"}))
	})

	t.Run("returns false for non-pg errors", func(t *testing.T) {
		assert.False(t, isPgUniqueViolation(errors.New("some error")))
	})

	t.Run("returns false for nil", func(t *testing.T) {
		assert.False(t, isPgUniqueViolation(nil))
	})
}

func TestIsPgForeignKeyViolation(t *testing.T) {
	assert.True(t, isPgForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isPgForeignKeyViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})))
	assert.False(t, isPgForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isPgForeignKeyViolation(nil))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, expected: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, expected: true},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, expected: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, expected: true},
		{name: "connection failure class", err: &pgconn.PgError{Code: "08006"}, expected: true},
		{name: "wrapped deadlock", err: fmt.Errorf("save: %w", &pgconn.PgError{Code: "40P01"}), expected: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, expected: false},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, expected: false},
		{name: "plain error", err: errors.New("boom"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}
