package ledger

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger owns the chain of confirmed blocks and the mempool of pending
// transactions. A single mutex guards both, so AddTransaction, AddBlock and
// ReplaceChain never interleave.
type Ledger struct {
	mu sync.Mutex

	chain     []*Block
	mempool   []*Transaction
	pending   map[string]struct{} // ids in mempool
	confirmed map[string]struct{} // ids in chain

	genesisHash string

	logger *logrus.Entry
}

// NewLedger returns a Ledger containing only the genesis block.
func NewLedger(logger *logrus.Entry) *Ledger {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	genesis := NewGenesisBlock()

	return &Ledger{
		chain:       []*Block{genesis},
		mempool:     []*Transaction{},
		pending:     make(map[string]struct{}),
		confirmed:   make(map[string]struct{}),
		genesisHash: genesis.Hash,
		logger:      logger.WithField("component", "ledger"),
	}
}

/*******************************************************************************
Transactions
*******************************************************************************/

// AddTransaction validates tx and appends it to the mempool. When trusted is
// true the balance check is skipped; this is used to import transactions a
// peer has already validated.
func (l *Ledger) AddTransaction(tx *Transaction, trusted bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx == nil || !tx.Value.IsPositive() {
		return NewValidationError(ErrNonPositiveValue, "")
	}

	if _, ok := l.pending[tx.ID]; ok {
		return NewValidationError(ErrDuplicateTransaction, "id %s", tx.ID)
	}

	if _, ok := l.confirmed[tx.ID]; ok {
		return NewValidationError(ErrTransactionConfirmed, "id %s", tx.ID)
	}

	if !trusted && !IsReservedAddress(tx.Origin) {
		balance := l.balance(tx.Origin)
		if balance.LessThan(tx.Value) {
			return NewValidationError(ErrInsufficientBalance,
				"%s has %s, needs %s", tx.Origin, balance, tx.Value)
		}
	}

	c := *tx
	l.mempool = append(l.mempool, &c)
	l.pending[tx.ID] = struct{}{}

	l.logger.WithFields(logrus.Fields{
		"id":      tx.ID,
		"trusted": trusted,
		"pending": len(l.mempool),
	}).Debug("AddTransaction")

	return nil
}

// Balance replays every confirmed transaction. Pending transactions do not
// count.
func (l *Ledger) Balance(address string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balance(address)
}

func (l *Ledger) balance(address string) decimal.Decimal {
	balance := decimal.Zero
	for _, b := range l.chain {
		for _, tx := range b.Transactions {
			if tx.Origin == address {
				balance = balance.Sub(tx.Value)
			}
			if tx.Destination == address {
				balance = balance.Add(tx.Value)
			}
		}
	}
	return balance
}

/*******************************************************************************
Blocks
*******************************************************************************/

// AddBlock appends a block that directly extends the tip. The block must carry
// a valid hash and proof-of-work. On success the block's transactions leave the
// mempool. On failure the ledger is left untouched.
func (l *Ledger) AddBlock(block *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.chain[len(l.chain)-1]

	if err := block.VerifyLink(tip); err != nil {
		return err
	}

	if err := block.Verify(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		if !tx.Value.IsPositive() {
			return NewValidationError(ErrNonPositiveValue, "block %d, tx %s", block.Index, tx.ID)
		}
		_, dup := seen[tx.ID]
		_, done := l.confirmed[tx.ID]
		if dup || done {
			return NewValidationError(ErrTransactionConfirmed, "block %d, tx %s", block.Index, tx.ID)
		}
		seen[tx.ID] = struct{}{}
	}

	b := block.Copy()
	l.chain = append(l.chain, b)
	for id := range seen {
		l.confirmed[id] = struct{}{}
	}
	l.removePending(seen)

	l.logger.WithFields(logrus.Fields{
		"index":        b.Index,
		"hash":         b.Hash,
		"transactions": len(b.Transactions),
		"pending":      len(l.mempool),
	}).Info("Block added")

	return nil
}

func (l *Ledger) removePending(ids map[string]struct{}) {
	if len(ids) == 0 {
		return
	}
	kept := l.mempool[:0]
	for _, tx := range l.mempool {
		if _, ok := ids[tx.ID]; ok {
			delete(l.pending, tx.ID)
			continue
		}
		kept = append(kept, tx)
	}
	// clear the tail so dropped transactions can be collected
	for i := len(kept); i < len(l.mempool); i++ {
		l.mempool[i] = nil
	}
	l.mempool = kept
}

/*******************************************************************************
Chains
*******************************************************************************/

// ValidateChain checks that candidate starts with our genesis block and that
// every following block links to its predecessor, hashes correctly and meets
// the difficulty.
func (l *Ledger) ValidateChain(candidate []*Block) error {
	if len(candidate) == 0 {
		return NewValidationError(ErrEmptyChain, "")
	}

	if candidate[0] == nil || candidate[0].Hash != l.genesisHash {
		return NewValidationError(ErrGenesisMismatch, "")
	}

	for i := 1; i < len(candidate); i++ {
		cur, prev := candidate[i], candidate[i-1]
		if cur == nil {
			return NewValidationError(ErrEmptyChain, "nil block at %d", i)
		}
		if err := cur.VerifyLink(prev); err != nil {
			return err
		}
		if err := cur.Verify(); err != nil {
			return err
		}
	}

	return nil
}

// IsValidChain is ValidateChain as a predicate.
func (l *Ledger) IsValidChain(candidate []*Block) bool {
	return l.ValidateChain(candidate) == nil
}

// ReplaceChain adopts candidate if it is strictly longer than the local chain
// and valid. The whole mempool is dropped on replacement, including
// transactions the new chain does not contain.
func (l *Ledger) ReplaceChain(candidate []*Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(candidate) <= len(l.chain) {
		return NewValidationError(ErrChainNotLonger, "candidate %d, local %d", len(candidate), len(l.chain))
	}

	if err := l.ValidateChain(candidate); err != nil {
		return err
	}

	chain := make([]*Block, 0, len(candidate))
	confirmed := make(map[string]struct{})
	for _, b := range candidate {
		chain = append(chain, b.Copy())
		for _, tx := range b.Transactions {
			confirmed[tx.ID] = struct{}{}
		}
	}

	dropped := len(l.mempool)

	l.chain = chain
	l.confirmed = confirmed
	l.mempool = []*Transaction{}
	l.pending = make(map[string]struct{})

	l.logger.WithFields(logrus.Fields{
		"length":  len(chain),
		"tip":     chain[len(chain)-1].Hash,
		"dropped": dropped,
	}).Info("Chain replaced")

	return nil
}

/*******************************************************************************
Accessors
*******************************************************************************/

// GenesisHash returns the hash of the local genesis block.
func (l *Ledger) GenesisHash() string {
	return l.genesisHash
}

// Tip returns a copy of the last block.
func (l *Ledger) Tip() *Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.chain[len(l.chain)-1].Copy()
}

// Len returns the number of blocks, genesis included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.chain)
}

// Chain returns a copy of the chain.
func (l *Ledger) Chain() []*Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make([]*Block, 0, len(l.chain))
	for _, b := range l.chain {
		res = append(res, b.Copy())
	}
	return res
}

// Block returns a copy of the block at index, or false if out of range.
func (l *Ledger) Block(index int) (*Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.chain) {
		return nil, false
	}
	return l.chain[index].Copy(), true
}

// HasBlock reports whether a block with this hash is part of the chain.
func (l *Ledger) HasBlock(hash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.chain) - 1; i >= 0; i-- {
		if l.chain[i].Hash == hash {
			return true
		}
	}
	return false
}

// Mempool returns a copy of the pending transactions in arrival order.
func (l *Ledger) Mempool() []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	return copyTransactions(l.mempool)
}

// MempoolSize returns the number of pending transactions.
func (l *Ledger) MempoolSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.mempool)
}

// Candidate returns the tip and the pending transactions from the same
// instant, which is what a miner needs to build the next block.
func (l *Ledger) Candidate() (*Block, []Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txs := make([]Transaction, 0, len(l.mempool))
	for _, tx := range l.mempool {
		txs = append(txs, *tx)
	}
	return l.chain[len(l.chain)-1].Copy(), txs
}
