package commands

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chainlet/chainlet/src/ledger"
	"github.com/chainlet/chainlet/src/node"
	"github.com/shopspring/decimal"
)

const consoleHelp = `Commands:
  tx <destination> <value>           send value from this node's address
  tx <origin> <destination> <value>  send value from origin (SYSTEM mints)
  mempool                            list pending transactions
  mine                               mine a block with the pending transactions
  chain                              print the blockchain
  balance [address]                  confirmed balance (default: this node)
  peers                              list known peers
  connect <host:port>                connect to a peer
  sync                               sync blockchain and mempool with peers
  stats                              print node stats
  help                               print this message
  quit                               stop the node`

// Console reads commands line by line and runs them against a node.
type Console struct {
	node *node.Node
	in   *bufio.Scanner
	out  io.Writer
}

// NewConsole ...
func NewConsole(n *node.Node, in io.Reader, out io.Writer) *Console {
	return &Console{
		node: n,
		in:   bufio.NewScanner(in),
		out:  out,
	}
}

// Run processes commands until quit or the end of the input.
func (c *Console) Run() {
	fmt.Fprintln(c.out, consoleHelp)

	for {
		fmt.Fprint(c.out, "> ")

		if !c.in.Scan() {
			return
		}

		if !c.Exec(c.in.Text()) {
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should stop.
func (c *Console) Exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "tx":
		c.createTransaction(args)
	case "mempool", "pending":
		c.showMempool()
	case "mine":
		c.mine()
	case "chain":
		c.showChain()
	case "balance":
		c.showBalance(args)
	case "peers":
		c.showPeers()
	case "connect":
		c.connect(args)
	case "sync":
		c.sync()
	case "stats":
		c.showStats()
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "exit":
		return false
	default:
		fmt.Fprintf(c.out, "unknown command %q, type help\n", cmd)
	}

	return true
}

func (c *Console) createTransaction(args []string) {
	origin := c.node.Addr()

	switch len(args) {
	case 2:
	case 3:
		origin, args = args[0], args[1:]
	default:
		fmt.Fprintln(c.out, "usage: tx [origin] <destination> <value>")
		return
	}

	value, err := decimal.NewFromString(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "invalid value %q\n", args[1])
		return
	}

	tx, err := c.node.CreateTransaction(origin, args[0], value)
	if err != nil {
		fmt.Fprintf(c.out, "transaction rejected: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "transaction created: %s\n", tx.ID)
}

func (c *Console) showMempool() {
	pending := c.node.Mempool()
	if len(pending) == 0 {
		fmt.Fprintln(c.out, "no pending transactions")
		return
	}

	c.printTransactions(pending)
}

func (c *Console) printTransactions(txs []*ledger.Transaction) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORIGIN\tDESTINATION\tVALUE")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tx.ID, tx.Origin, tx.Destination, tx.Value)
	}
	w.Flush()
}

func (c *Console) mine() {
	start := time.Now()

	block, err := c.node.Mine()
	if err != nil {
		fmt.Fprintf(c.out, "mining failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "block #%d mined in %s\nhash: %s\nnonce: %d\n",
		block.Index, time.Since(start).Round(time.Millisecond), block.Hash, block.Nonce)
}

func (c *Console) showChain() {
	for _, b := range c.node.Chain() {
		fmt.Fprintf(c.out, "block #%d\n  hash: %s\n  previous: %s\n  nonce: %d\n  transactions: %d\n",
			b.Index, b.Hash, b.PreviousHash, b.Nonce, len(b.Transactions))

		if len(b.Transactions) > 0 {
			txs := make([]*ledger.Transaction, 0, len(b.Transactions))
			for i := range b.Transactions {
				txs = append(txs, &b.Transactions[i])
			}
			c.printTransactions(txs)
		}
	}
}

func (c *Console) showBalance(args []string) {
	address := c.node.Addr()
	if len(args) > 0 {
		address = args[0]
	}

	fmt.Fprintf(c.out, "balance of %s: %s\n", address, c.node.Balance(address))
}

func (c *Console) showPeers() {
	peers := c.node.Peers()
	if len(peers) == 0 {
		fmt.Fprintln(c.out, "no peers")
		return
	}

	for _, p := range peers {
		fmt.Fprintln(c.out, p)
	}
}

func (c *Console) connect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: connect <host:port>")
		return
	}

	if c.node.ConnectToPeer(args[0]) {
		fmt.Fprintf(c.out, "connected to %s\n", args[0])
	} else {
		fmt.Fprintf(c.out, "failed to connect to %s\n", args[0])
	}
}

func (c *Console) sync() {
	c.node.SyncBlockchain()
	res := c.node.SyncMempool()

	fmt.Fprintf(c.out, "blockchain: %d blocks\nmempool: %d pending (+%d new)\n",
		len(c.node.Chain()), len(c.node.Mempool()), res.Added)

	for _, p := range res.Unreachable {
		fmt.Fprintf(c.out, "could not reach peer %s, check firewall/network\n", p)
	}
}

func (c *Console) showStats() {
	stats := c.node.GetStats()

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, stats[k])
	}
	w.Flush()
}
