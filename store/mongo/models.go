package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

// ==================== Account models ====================

type accountModel struct {
	ID              string     `bson:"_id"`
	OrganizationID  string     `bson:"organization_id"`
	Type            string     `bson:"type"`
	Expires         *time.Time `bson:"expires,omitempty"`
	RenewableAmount *int64     `bson:"renewable_amount,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	m := &accountModel{
		ID:              a.ID.String(),
		OrganizationID:  a.OrganizationID,
		Type:            string(a.Type),
		RenewableAmount: a.RenewableAmount,
		CreatedAt:       bsonTime(a.CreatedAt),
		UpdatedAt:       bsonTime(a.UpdatedAt),
	}
	if a.Expires != nil {
		exp := bsonTime(*a.Expires)
		m.Expires = &exp
	}
	return m
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse account id %q: %w", m.ID, err)
	}

	a := &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:              accountID,
		OrganizationID:  m.OrganizationID,
		Type:            account.Type(m.Type),
		RenewableAmount: m.RenewableAmount,
	}
	if m.Expires != nil {
		exp := m.Expires.UTC()
		a.Expires = &exp
	}
	return a, nil
}

// ==================== Transaction models ====================

// transactionModel keys each row by transfer and account so a replayed
// transfer collides on _id.
type transactionModel struct {
	ID          string           `bson:"_id"`
	TxID        string           `bson:"tx_id"`
	GroupID     string           `bson:"group_id,omitempty"`
	AccountID   string           `bson:"account_id"`
	Debit       int64            `bson:"debit"`
	Credit      int64            `bson:"credit"`
	Created     time.Time        `bson:"created"`
	ProjectID   string           `bson:"project_id"`
	ServiceName string           `bson:"service_name"`
	Requests    map[string]int64 `bson:"requests,omitempty"`
	Operation   string           `bson:"operation"`
	Line        int              `bson:"line"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	m := &transactionModel{
		ID:          t.TxID.String() + "/" + t.AccountID.String(),
		TxID:        t.TxID.String(),
		AccountID:   t.AccountID.String(),
		Debit:       t.Debit,
		Credit:      t.Credit,
		Created:     bsonTime(t.Created),
		ProjectID:   t.ProjectID,
		ServiceName: t.ServiceName,
		Operation:   string(t.Operation),
		Line:        t.Line,
	}
	if !t.GroupID.IsNil() {
		m.GroupID = t.GroupID.String()
	}
	if len(t.Requests) > 0 {
		m.Requests = make(map[string]int64, len(t.Requests))
		for u, n := range t.Requests {
			m.Requests[string(u)] = n
		}
	}
	return m
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txID, err := id.ParseTransferID(m.TxID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer id %q: %w", m.TxID, err)
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account id %q: %w", m.AccountID, err)
	}

	t := &transaction.Transaction{
		TxID:        txID,
		AccountID:   accountID,
		Debit:       m.Debit,
		Credit:      m.Credit,
		Created:     m.Created.UTC(),
		ProjectID:   m.ProjectID,
		ServiceName: m.ServiceName,
		Operation:   transaction.Operation(m.Operation),
		Line:        m.Line,
	}
	if m.GroupID != "" {
		if t.GroupID, err = id.ParseLeaseID(m.GroupID); err != nil {
			return nil, fmt.Errorf("parse lease id %q: %w", m.GroupID, err)
		}
	}
	if len(m.Requests) > 0 {
		t.Requests = make(types.Resources, len(m.Requests))
		for u, n := range m.Requests {
			t.Requests[types.Unit(u)] = n
		}
	}
	return t, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	ID             string    `bson:"_id"`
	OrganizationID string    `bson:"organization_id"`
	Status         string    `bson:"status"`
	RenewalDay     int       `bson:"renewal_day"`
	CreditAccounts []string  `bson:"credit_accounts"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	accounts := make([]string, len(s.CreditAccounts))
	for i, a := range s.CreditAccounts {
		accounts[i] = a.String()
	}
	return &subscriptionModel{
		ID:             s.ID.String(),
		OrganizationID: s.OrganizationID,
		Status:         string(s.Status),
		RenewalDay:     s.RenewalDay,
		CreditAccounts: accounts,
		CreatedAt:      bsonTime(s.CreatedAt),
		UpdatedAt:      bsonTime(s.UpdatedAt),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription id %q: %w", m.ID, err)
	}

	var accounts []id.AccountID
	for _, raw := range m.CreditAccounts {
		a, err := id.ParseAccountID(raw)
		if err != nil {
			return nil, fmt.Errorf("parse credit account %q: %w", raw, err)
		}
		accounts = append(accounts, a)
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             subID,
		OrganizationID: m.OrganizationID,
		Status:         subscription.Status(m.Status),
		RenewalDay:     m.RenewalDay,
		CreditAccounts: accounts,
	}, nil
}

// bsonTime truncates to the millisecond precision of a BSON datetime so
// values compare equal after a round trip.
func bsonTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}
