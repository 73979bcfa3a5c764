package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mediator/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := NewDB("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	return gdb
}

func TestSeedCurrencies(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, SeedCurrencies(gdb))

	var count int64
	require.NoError(t, gdb.Model(&models.Currency{}).Count(&count).Error)
	assert.Greater(t, count, int64(100))

	var usd models.Currency
	require.NoError(t, gdb.First(&usd, "code = ?", "USD").Error)
	assert.Equal(t, 840, usd.Numeric)

	require.NoError(t, SeedCurrencies(gdb))
	var count2 int64
	gdb.Model(&models.Currency{}).Count(&count2)
	assert.Equal(t, count, count2, "reseed must not duplicate")
}

func TestSeedOperator(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, SeedOperator(gdb, "alice", "secret", nil))
	require.NoError(t, SeedOperator(gdb, "alice", "other", nil))

	var ops []models.Operator
	require.NoError(t, gdb.Find(&ops).Error)
	require.Len(t, ops, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(ops[0].Password), []byte("secret")))

	assert.Error(t, SeedOperator(gdb, "", "x", nil))
}

func TestSolverQueries(t *testing.T) {
	gdb := openTestDB(t)
	u, err := FindUser(gdb, "pk")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, UpsertSolver(gdb, "pk"))
	require.NoError(t, UpsertSolver(gdb, "pk"))
	u, err = FindUser(gdb, "pk")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsSolver)

	solver := "pk"
	order := models.Order{Kind: "sell", Status: "dispute", CreatorPubkey: "maker", FiatCode: "USD", PaymentMethod: "bank"}
	require.NoError(t, gdb.Create(&order).Error)
	require.NoError(t, gdb.Create(&models.Dispute{OrderID: order.ID, Status: models.DisputeStatusInProgress, OrderPreviousStatus: "active", InitiatorPubkey: "maker", SolverPubkey: &solver}).Error)

	ok, err := IsAssignedSolver(gdb, "pk", order.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = IsAssignedSolver(gdb, "other", order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := FindDisputeByOrderID(gdb, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusInProgress, d.Status)
}
