package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ugorji/go/codec"
)

const (
	// DifficultyPrefix is the prefix every non-genesis block hash must carry.
	DifficultyPrefix = "000"

	// GenesisPreviousHash is the sentinel previous hash of the genesis block.
	GenesisPreviousHash = "0"

	// GenesisTimestamp is fixed so that every node computes the same genesis.
	GenesisTimestamp int64 = 0
)

// canonicalHandle encodes map keys and struct fields sorted by their encoded
// name, which makes the block body encoding deterministic.
var canonicalHandle = func() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}()

// BlockBody is the hashed part of a Block.
type BlockBody struct {
	Index        int           `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
	Nonce        uint64        `json:"nonce"`
	Timestamp    int64         `json:"timestamp"`
}

// Marshal returns the canonical JSON encoding of the body.
func (bb *BlockBody) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, canonicalHandle)
	if err := enc.Encode(bb); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Hash returns the hex encoded SHA256 of the canonical encoding.
func (bb *BlockBody) Hash() (string, error) {
	data, err := bb.Marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Block is a set of transactions linked to its predecessor by PreviousHash.
type Block struct {
	Index        int           `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
	Nonce        uint64        `json:"nonce"`
	Timestamp    int64         `json:"timestamp"`
	Hash         string        `json:"hash"`
}

// NewBlock creates an unsealed block. Hash is left empty until Seal is called.
func NewBlock(index int, previousHash string, txs []Transaction, timestamp int64) *Block {
	if txs == nil {
		txs = []Transaction{}
	}
	return &Block{
		Index:        index,
		PreviousHash: previousHash,
		Transactions: txs,
		Timestamp:    timestamp,
	}
}

// NewGenesisBlock returns the block every chain starts from.
func NewGenesisBlock() *Block {
	b := NewBlock(0, GenesisPreviousHash, nil, GenesisTimestamp)
	if err := b.Seal(); err != nil {
		panic(err)
	}
	return b
}

// Body returns the hashed fields.
func (b *Block) Body() BlockBody {
	txs := b.Transactions
	if txs == nil {
		// nil and empty must hash the same
		txs = []Transaction{}
	}
	return BlockBody{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Transactions: txs,
		Nonce:        b.Nonce,
		Timestamp:    b.Timestamp,
	}
}

// ComputeHash recomputes the hash from the current field values.
func (b *Block) ComputeHash() (string, error) {
	body := b.Body()
	return body.Hash()
}

// Seal sets Hash to the hash of the current field values.
func (b *Block) Seal() error {
	h, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = h
	return nil
}

// Copy returns a deep copy of the block.
func (b *Block) Copy() *Block {
	c := *b
	c.Transactions = make([]Transaction, len(b.Transactions))
	copy(c.Transactions, b.Transactions)
	return &c
}

// MeetsDifficulty reports whether a hex hash satisfies the difficulty prefix.
func MeetsDifficulty(hash string) bool {
	return strings.HasPrefix(hash, DifficultyPrefix)
}

// Verify checks the block's own invariants: the stored hash matches the
// recomputed hash and, for non-genesis blocks, meets the difficulty.
func (b *Block) Verify() error {
	h, err := b.ComputeHash()
	if err != nil {
		return err
	}
	if h != b.Hash {
		return NewValidationError(ErrBadHash, "block %d: have %s, computed %s", b.Index, b.Hash, h)
	}
	if b.Index > 0 && !MeetsDifficulty(b.Hash) {
		return NewValidationError(ErrInsufficientWork, "block %d: %s", b.Index, b.Hash)
	}
	return nil
}

// VerifyLink checks that b directly extends prev.
func (b *Block) VerifyLink(prev *Block) error {
	if b.PreviousHash != prev.Hash {
		return NewValidationError(ErrBadLinkage, "block %d: previous %s, expected %s", b.Index, b.PreviousHash, prev.Hash)
	}
	if b.Index != prev.Index+1 {
		return NewValidationError(ErrBadIndex, "got %d, expected %d", b.Index, prev.Index+1)
	}
	return nil
}
