package shared

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapLockErrorTranslatesLockFailures(t *testing.T) {
	for _, code := range []string{"55P03", "40P01"} {
		err := MapLockError(&pgconn.PgError{Code: code, Message: "could not obtain lock"})
		require.ErrorIs(t, err, ErrLockTimeout)
	}
}

func TestMapLockErrorPassesThroughOtherErrors(t *testing.T) {
	require.Nil(t, MapLockError(nil))

	plain := errors.New("boom")
	require.Equal(t, plain, MapLockError(plain))

	unique := &pgconn.PgError{Code: "23505"}
	require.Equal(t, error(unique), MapLockError(unique))
}
