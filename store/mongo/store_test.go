package mongo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

func TestTransactionFilter(t *testing.T) {
	acct := id.NewAccountID()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	got := transactionFilter(transaction.Filter{
		AccountID:  acct,
		Operation:  transaction.OpConsumption,
		From:       from,
		To:         to,
		ProjectIDs: []string{"alpha"},
		Unit:       "image",
	})

	assert.Equal(t, bson.M{
		"account_id":     acct.String(),
		"operation":      "consumption",
		"created":        bson.M{"$gte": from, "$lt": to},
		"project_id":     bson.M{"$in": []string{"alpha"}},
		"requests.image": bson.M{"$exists": true},
	}, got)

	assert.Empty(t, transactionFilter(transaction.Filter{}))
}

func TestSortSpec(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "created", Value: -1}, {Key: "tx_id", Value: -1}}, sortSpec(""))
	assert.Equal(t, bson.D{{Key: "credit", Value: 1}, {Key: "tx_id", Value: 1}}, sortSpec(transaction.SortCredits))
	assert.Equal(t, bson.D{{Key: "created", Value: 1}, {Key: "tx_id", Value: 1}}, sortSpec(transaction.SortCreated))
}

func TestAccountFilter(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, bson.M{"organization_id": "org_1"}, accountFilter("org_1", account.ListOpts{}))

	got := accountFilter("org_1", account.ListOpts{Type: account.TypeAsset, ActiveAt: at})
	assert.Equal(t, "ASSET", got["type"])
	assert.Equal(t, bson.A{
		bson.M{"expires": bson.M{"$exists": false}},
		bson.M{"expires": bson.M{"$gt": at}},
	}, got["$or"])
}

func TestAccountModel(t *testing.T) {
	exp := time.Date(2026, 4, 1, 0, 0, 0, 123456789, time.UTC)
	renew := int64(250)
	a := &account.Account{
		Entity:          types.NewEntity(exp.Add(-time.Hour)),
		ID:              id.NewAccountID(),
		OrganizationID:  "org_1",
		Type:            account.TypeAsset,
		Expires:         &exp,
		RenewableAmount: &renew,
	}

	m := toAccountModel(a)
	assert.Equal(t, exp.Truncate(time.Millisecond), *m.Expires)

	back, err := fromAccountModel(m)
	require.NoError(t, err)
	assert.Equal(t, a.ID, back.ID)
	assert.Equal(t, account.TypeAsset, back.Type)
	assert.True(t, back.Expires.Equal(exp.Truncate(time.Millisecond)))
	assert.Equal(t, renew, *back.RenewableAmount)

	m.ID = "bogus"
	_, err = fromAccountModel(m)
	assert.Error(t, err)
}

func TestTransactionModel(t *testing.T) {
	row := &transaction.Transaction{
		TxID:      id.NewTransferID(),
		GroupID:   id.NewLeaseID(),
		AccountID: id.NewAccountID(),
		Credit:    40,
		Created:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		ProjectID: "alpha",
		Requests:  types.Resources{"image": 30, "frame": 10},
		Operation: transaction.OpReservation,
		Line:      3,
	}

	m := toTransactionModel(row)
	assert.Equal(t, row.TxID.String()+"/"+row.AccountID.String(), m.ID)
	assert.Equal(t, map[string]int64{"image": 30, "frame": 10}, m.Requests)

	back, err := fromTransactionModel(m)
	require.NoError(t, err)
	assert.Equal(t, row, back)

	ungrouped := toTransactionModel(&transaction.Transaction{
		TxID:      id.NewTransferID(),
		AccountID: id.NewAccountID(),
		Operation: transaction.OpFill,
	})
	assert.Empty(t, ungrouped.GroupID)
	back, err = fromTransactionModel(ungrouped)
	require.NoError(t, err)
	assert.True(t, back.GroupID.IsNil())
	assert.Nil(t, back.Requests)
}

func TestSubscriptionModel(t *testing.T) {
	sub := &subscription.Subscription{
		Entity:         types.NewEntity(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		ID:             id.NewSubscriptionID(),
		OrganizationID: "org_1",
		Status:         subscription.StatusActive,
		RenewalDay:     31,
		CreditAccounts: []id.AccountID{id.NewAccountID(), id.NewAccountID()},
	}

	back, err := fromSubscriptionModel(toSubscriptionModel(sub))
	require.NoError(t, err)
	assert.Equal(t, sub, back)
}

func TestIsContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"TransientLabel", mongo.CommandError{Code: 251, Labels: []string{labelTransient}}, true},
		{"WriteConflict", mongo.CommandError{Code: codeWriteConflict}, true},
		{"DuplicateLockDocument", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}, true},
		{"OtherCommand", mongo.CommandError{Code: 13, Name: "Unauthorized"}, false},
		{"Plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isContention(tt.err))
		})
	}
}

func TestMigrationIndexes(t *testing.T) {
	idx := migrationIndexes()
	assert.Len(t, idx[colAccounts], 3)
	assert.Len(t, idx[colTransactions], 2)
	assert.Len(t, idx[colSubscriptions], 1)
}
