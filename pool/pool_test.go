package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/emergent-company/turnbase/pkg/apperror"
)

func TestClassifyNoRowsBecomesNotFound(t *testing.T) {
	err := classify(pgx.ErrNoRows, "SELECT 1", nil)

	var appErr *apperror.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindNotFound, appErr.Kind)
	assert.Equal(t, "SELECT 1", appErr.Details["sql"])
}

func TestClassifyContextCancelled(t *testing.T) {
	err := classify(context.Canceled, "SELECT 1", nil)

	var appErr *apperror.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindCancelled, appErr.Kind)
}

func TestClassifyContextDeadlineExceeded(t *testing.T) {
	err := classify(context.DeadlineExceeded, "SELECT 1", nil)

	var appErr *apperror.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindTimeout, appErr.Kind)
}

func TestClassifyUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "artifacts_pkey"}
	err := classify(pgErr, "INSERT INTO artifacts ...", []any{"a"})

	var appErr *apperror.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindDuplicateKey, appErr.Kind)
	assert.Equal(t, "artifacts_pkey", appErr.Details["constraint"])
}

func TestClassifyUnknownBecomesConnectionLost(t *testing.T) {
	err := classify(errors.New("write: broken pipe"), "SELECT 1", nil)

	var appErr *apperror.Error
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindConnectionLost, appErr.Kind)
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, classify(nil, "SELECT 1", nil))
}

func TestRowIsPlainMap(t *testing.T) {
	row := Row{"id": 1, "name": "trunk"}
	assert.Equal(t, 1, row["id"])
	assert.Equal(t, "trunk", row["name"])
}
