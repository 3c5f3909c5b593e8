package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reserved origin addresses. Transactions from these addresses mint value and
// are never checked against a balance.
const (
	SystemAddress   = "SYSTEM"
	GenesisAddress  = "genesis"
	CoinbaseAddress = "coinbase"
)

// IsReservedAddress reports whether addr is one of the minting origins.
func IsReservedAddress(addr string) bool {
	switch addr {
	case SystemAddress, GenesisAddress, CoinbaseAddress:
		return true
	default:
		return false
	}
}

// Transaction moves Value from Origin to Destination. Transactions are
// identified by ID; two transactions with the same ID are the same
// transaction.
type Transaction struct {
	ID          string          `json:"id"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Value       decimal.Decimal `json:"value"`
	Timestamp   int64           `json:"timestamp"`
}

// NewTransaction creates a Transaction with a fresh ID and the current time.
// It fails with ErrNonPositiveValue when value <= 0.
func NewTransaction(origin, destination string, value decimal.Decimal) (*Transaction, error) {
	if !value.IsPositive() {
		return nil, NewValidationError(ErrNonPositiveValue, "value %s", value)
	}

	return &Transaction{
		ID:          uuid.New().String(),
		Origin:      origin,
		Destination: destination,
		Value:       value,
		Timestamp:   time.Now().UnixNano(),
	}, nil
}

// Equal compares every field, using decimal equality for the value.
func (t *Transaction) Equal(o *Transaction) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.ID == o.ID &&
		t.Origin == o.Origin &&
		t.Destination == o.Destination &&
		t.Value.Equal(o.Value) &&
		t.Timestamp == o.Timestamp
}

func copyTransactions(txs []*Transaction) []*Transaction {
	res := make([]*Transaction, 0, len(txs))
	for _, tx := range txs {
		c := *tx
		res = append(res, &c)
	}
	return res
}
