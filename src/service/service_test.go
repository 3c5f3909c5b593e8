package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chainlet/chainlet/src/config"
	"github.com/chainlet/chainlet/src/ledger"
	"github.com/chainlet/chainlet/src/net"
	"github.com/chainlet/chainlet/src/node"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *node.Node) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.Mine = false
	conf.Discover = false

	trans, err := net.NewTCPTransport(conf.BindAddr, "", conf.TCPTimeout, conf.MaxFrameSize, conf.Logger())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	n := node.NewNode(conf, trans)
	if err := n.Start(); err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(n.Stop)

	return NewService("127.0.0.1:0", n, conf.Logger()), n
}

func get(t *testing.T, s *Service, path string, out interface{}) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code == http.StatusOK && out != nil {
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	return rec.Code
}

func TestGetChainAndBlock(t *testing.T) {
	s, n := newTestService(t)

	_, err := n.CreateTransaction(ledger.SystemAddress, "alice", decimal.NewFromInt(5))
	require.NoError(t, err)
	mined, err := n.Mine()
	require.NoError(t, err)

	var chain []*ledger.Block
	require.Equal(t, http.StatusOK, get(t, s, "/chain", &chain))
	require.Len(t, chain, 2)
	assert.Equal(t, mined.Hash, chain[1].Hash)
	assert.True(t, chain[1].Transactions[0].Value.Equal(decimal.NewFromInt(5)))

	var block ledger.Block
	require.Equal(t, http.StatusOK, get(t, s, "/block/1", &block))
	assert.Equal(t, mined.Hash, block.Hash)
	assert.NoError(t, block.Verify())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/block/7", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/block/abc", nil))
}

func TestGetMempoolAndBalance(t *testing.T) {
	s, n := newTestService(t)

	tx, err := n.CreateTransaction(ledger.SystemAddress, "bob", decimal.NewFromInt(2))
	require.NoError(t, err)

	var pending []*ledger.Transaction
	require.Equal(t, http.StatusOK, get(t, s, "/mempool", &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].ID)

	// unconfirmed
	var bal Balance
	require.Equal(t, http.StatusOK, get(t, s, "/balance/bob", &bal))
	assert.Equal(t, Balance{Address: "bob", Balance: "0"}, bal)

	_, err = n.Mine()
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, get(t, s, "/balance/bob", &bal))
	assert.Equal(t, "2", bal.Balance)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/balance/", nil))
}

func TestGetStatsAndPeers(t *testing.T) {
	s, n := newTestService(t)

	var stats map[string]string
	require.Equal(t, http.StatusOK, get(t, s, "/stats", &stats))
	assert.Equal(t, n.Addr(), stats["addr"])
	assert.Equal(t, "1", stats["chain_length"])

	var peers []string
	require.Equal(t, http.StatusOK, get(t, s, "/peers", &peers))
	assert.Empty(t, peers)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/chain", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	s, n := newTestService(t)

	if err := s.Start(); err != nil {
		t.Fatalf("err: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, n.Addr(), stats["addr"])

	s.Shutdown()

	_, err = http.Get("http://" + s.Addr() + "/stats")
	assert.Error(t, err)
}
