package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// revertError is what a node returns for a reverted eth_call.
type revertError struct{}

func (revertError) Error() string  { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }

var errReverted error = revertError{}

// downCaller fails every call the way an unreachable endpoint does.
type downCaller struct{}

func (downCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
}

// fakeChain answers identity and reputation registry calls from maps,
// ABI-encoding the responses the way a node would.
type fakeChain struct {
	t          *testing.T
	identity   abi.ABI
	reputation abi.ABI
	idAddr     common.Address
	repAddr    common.Address

	mu         sync.Mutex
	supply     *big.Int
	supplyErr  error
	uris       map[uint64]string
	rawURIs    map[uint64][]byte
	summaries  map[uint64]Summary
	summaryErr map[uint64]bool
	wallets    map[uint64]common.Address
	walletErr  map[uint64]bool
	calls      map[string]int
	delay      time.Duration
	inFlight   int
	maxFlight  int
}

func newFakeChain(t *testing.T, idAddr, repAddr common.Address) *fakeChain {
	t.Helper()
	idABI, err := abi.JSON(strings.NewReader(identityABI))
	if err != nil {
		t.Fatalf("parse identity abi: %v", err)
	}
	repABI, err := abi.JSON(strings.NewReader(reputationABI))
	if err != nil {
		t.Fatalf("parse reputation abi: %v", err)
	}
	return &fakeChain{
		t:          t,
		identity:   idABI,
		reputation: repABI,
		idAddr:     idAddr,
		repAddr:    repAddr,
		uris:       map[uint64]string{},
		rawURIs:    map[uint64][]byte{},
		summaries:  map[uint64]Summary{},
		summaryErr: map[uint64]bool{},
		wallets:    map[uint64]common.Address{},
		walletErr:  map[uint64]bool{},
		calls:      map[string]int{},
	}
}

func (f *fakeChain) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 || msg.To == nil {
		return nil, fmt.Errorf("malformed call")
	}

	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	delay := f.delay
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	want := f.idAddr
	m, err := f.identity.MethodById(msg.Data[:4])
	if err != nil {
		want = f.repAddr
		if m, err = f.reputation.MethodById(msg.Data[:4]); err != nil {
			return nil, fmt.Errorf("unknown selector")
		}
	}
	if *msg.To != want {
		f.t.Errorf("%s sent to %s, want %s", m.Name, msg.To.Hex(), want.Hex())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[m.Name]++

	var agentID uint64
	if len(m.Inputs) > 0 {
		args, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		agentID = args[0].(*big.Int).Uint64()
	}

	switch m.Name {
	case methodTotalSupply:
		if f.supplyErr != nil {
			return nil, f.supplyErr
		}
		return m.Outputs.Pack(f.supply)
	case methodTokenURI:
		if raw, ok := f.rawURIs[agentID]; ok {
			return raw, nil
		}
		uri, ok := f.uris[agentID]
		if !ok {
			return nil, errReverted
		}
		return m.Outputs.Pack(uri)
	case methodSummary:
		if f.summaryErr[agentID] {
			return nil, errReverted
		}
		s, ok := f.summaries[agentID]
		if !ok {
			return m.Outputs.Pack(uint64(0), big.NewInt(0), uint8(0))
		}
		return m.Outputs.Pack(s.Count, s.Value, s.Decimals)
	case methodWallet:
		if f.walletErr[agentID] {
			return nil, errReverted
		}
		return m.Outputs.Pack(f.wallets[agentID])
	}
	return nil, fmt.Errorf("unhandled method %s", m.Name)
}
