package net

import (
	"fmt"
	"reflect"

	"github.com/chainlet/chainlet/src/ledger"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// MessageType is the string tag identifying a message on the wire.
type MessageType string

const (
	// TypeNewTransaction announces a transaction. Payload: Transaction.
	TypeNewTransaction MessageType = "NEW_TRANSACTION"
	// TypeNewBlock announces a mined block. Payload: Block.
	TypeNewBlock MessageType = "NEW_BLOCK"
	// TypeRequestChain asks for the full chain. No payload.
	TypeRequestChain MessageType = "REQUEST_CHAIN"
	// TypeResponseChain carries a full chain. Payload: []Block.
	TypeResponseChain MessageType = "RESPONSE_CHAIN"
	// TypeRequestMempool asks for the pending transactions. No payload.
	TypeRequestMempool MessageType = "REQUEST_MEMPOOL"
	// TypeResponseMempool carries pending transactions. Payload: []Transaction.
	TypeResponseMempool MessageType = "RESPONSE_MEMPOOL"
	// TypePing is a liveness probe. No payload.
	TypePing MessageType = "PING"
	// TypePong answers a ping. No payload.
	TypePong MessageType = "PONG"
	// TypeDiscoverPeers asks for known peers. No payload.
	TypeDiscoverPeers MessageType = "DISCOVER_PEERS"
	// TypePeersList carries peer addresses. Payload: []string.
	TypePeersList MessageType = "PEERS_LIST"
)

// Optional reports whether t belongs to the gossip extensions rather than the
// core protocol.
func (t MessageType) Optional() bool {
	switch t {
	case TypePing, TypePong, TypeDiscoverPeers, TypePeersList:
		return true
	default:
		return false
	}
}

// Known reports whether t is part of the message catalog.
func (t MessageType) Known() bool {
	switch t {
	case TypeNewTransaction, TypeNewBlock,
		TypeRequestChain, TypeResponseChain,
		TypeRequestMempool, TypeResponseMempool:
		return true
	default:
		return t.Optional()
	}
}

// Message is the unit exchanged between nodes. Sender is the advertised
// address of the node that created the message. After decoding, Payload holds
// generic JSON values; use DecodePayload to get typed values.
type Message struct {
	Type    MessageType `json:"type"`
	Sender  string      `json:"sender"`
	Payload interface{} `json:"payload"`
}

// NewMessage returns a message of any type.
func NewMessage(t MessageType, sender string, payload interface{}) *Message {
	return &Message{
		Type:    t,
		Sender:  sender,
		Payload: payload,
	}
}

// NewTransactionMessage wraps a transaction announcement.
func NewTransactionMessage(sender string, tx *ledger.Transaction) *Message {
	return NewMessage(TypeNewTransaction, sender, tx)
}

// NewBlockMessage wraps a block announcement.
func NewBlockMessage(sender string, block *ledger.Block) *Message {
	return NewMessage(TypeNewBlock, sender, block)
}

// NewChainMessage wraps a chain response.
func NewChainMessage(sender string, chain []*ledger.Block) *Message {
	if chain == nil {
		chain = []*ledger.Block{}
	}
	return NewMessage(TypeResponseChain, sender, chain)
}

// NewMempoolMessage wraps a mempool response.
func NewMempoolMessage(sender string, txs []*ledger.Transaction) *Message {
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	return NewMessage(TypeResponseMempool, sender, txs)
}

// NewPeersMessage wraps a peer list.
func NewPeersMessage(sender string, addrs []string) *Message {
	if addrs == nil {
		addrs = []string{}
	}
	return NewMessage(TypePeersList, sender, addrs)
}

// DecodePayload converts the payload into out, which must be a pointer.
func (m *Message) DecodePayload(out interface{}) error {
	if m.Payload == nil {
		return fmt.Errorf("%s: %w: no payload", m.Type, ErrMalformedFrame)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decimalHook,
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(m.Payload); err != nil {
		return fmt.Errorf("%s: %w: %v", m.Type, ErrMalformedFrame, err)
	}
	return nil
}

// Transaction decodes a NEW_TRANSACTION payload.
func (m *Message) Transaction() (*ledger.Transaction, error) {
	var tx ledger.Transaction
	if err := m.DecodePayload(&tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Block decodes a NEW_BLOCK payload.
func (m *Message) Block() (*ledger.Block, error) {
	var b ledger.Block
	if err := m.DecodePayload(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Chain decodes a RESPONSE_CHAIN payload.
func (m *Message) Chain() ([]*ledger.Block, error) {
	var chain []*ledger.Block
	if err := m.DecodePayload(&chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// Transactions decodes a RESPONSE_MEMPOOL payload.
func (m *Message) Transactions() ([]*ledger.Transaction, error) {
	var txs []*ledger.Transaction
	if err := m.DecodePayload(&txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Peers decodes a PEERS_LIST payload.
func (m *Message) Peers() ([]string, error) {
	var addrs []string
	if err := m.DecodePayload(&addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook turns the string (or number) form of a value back into a
// decimal.Decimal.
func decimalHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint64:
		return decimal.NewFromString(fmt.Sprintf("%d", v))
	default:
		return data, nil
	}
}
