package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestHealthChecker_Healthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	checker := NewHealthChecker(db, nil, newTestLogger())
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.True(t, result.Database.Healthy)
	assert.Nil(t, result.Redis)
	assert.True(t, checker.IsHealthy())
	assert.NoError(t, checker.LastError())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecker_FailureAndRecovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checker := NewHealthChecker(db, nil, newTestLogger())

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	result := checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Database.Error)
	assert.False(t, checker.IsHealthy())
	assert.Error(t, checker.LastError())

	mock.ExpectPing()
	result = checker.Check(context.Background())
	assert.True(t, result.Healthy)
	assert.True(t, checker.IsHealthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}
