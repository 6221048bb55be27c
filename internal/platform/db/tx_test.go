package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type recordingBeginner struct {
	opts pgx.TxOptions
	tx   *recordingTx
}

func (b *recordingBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	b.tx = &recordingTx{}
	return b.tx, nil
}

func TestWithTxIsolation(t *testing.T) {
	ctx := context.Background()
	b := &recordingBeginner{}

	require.NoError(t, WithTx(ctx, b, func(pgx.Tx) error { return nil }))
	assert.Equal(t, pgx.RepeatableRead, b.opts.IsoLevel)
	assert.True(t, b.tx.committed)

	require.NoError(t, WithTxIsolation(ctx, b, pgx.ReadCommitted, func(pgx.Tx) error { return nil }))
	assert.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)

	boom := errors.New("boom")
	err := WithTxIsolation(ctx, b, pgx.ReadCommitted, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, b.tx.committed)
	assert.True(t, b.tx.rolledBack)
}

func TestConstraintViolations(t *testing.T) {
	unique := fmt.Errorf("insert book: %w", &pgconn.PgError{Code: "23505", ConstraintName: "books_title_author_key"})
	assert.True(t, IsUniqueViolation(unique, "books_title_author_key"))
	assert.True(t, IsUniqueViolation(unique, ""))
	assert.False(t, IsUniqueViolation(unique, "users_username_key"))
	assert.False(t, IsForeignKeyViolation(unique, ""))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "comments_post_id_fkey"}
	assert.True(t, IsForeignKeyViolation(fk, ""))

	check := &pgconn.PgError{Code: "23514", ConstraintName: "follows_no_self"}
	assert.True(t, IsCheckViolation(check, "follows_no_self"))

	serial := fmt.Errorf("update book: %w", &pgconn.PgError{Code: "40001"})
	assert.True(t, IsSerializationFailure(serial))
	assert.False(t, IsSerializationFailure(unique))

	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
	assert.False(t, IsCheckViolation(nil, ""))
}
