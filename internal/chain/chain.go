// Package chain enumerates the networks whose ERC-8004 registries the
// directory can read.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownChain is returned when a chain selector does not name a supported network.
var ErrUnknownChain = errors.New("chain: unsupported chain")

// ID identifies a supported network.
type ID int

const (
	Base ID = iota
	BaseSepolia
	Ethereum
	Sepolia

	numChains
)

// Spec describes where a chain's registries live.
type Spec struct {
	ID                 ID
	Slug               string
	Name               string
	ChainID            int64
	DefaultRPC         string
	IdentityRegistry   common.Address
	ReputationRegistry common.Address
}

var (
	mainnetIdentity   = common.HexToAddress("0x8004A169FB4a3325136EB29fA0ceB6D2e539a432")
	mainnetReputation = common.HexToAddress("0x8004BAa17C55a88189AE136b182e5fdA19dE9b63")
	testnetIdentity   = common.HexToAddress("0x8004A818BFB912233c491871b3d84c89A494BD9e")
	testnetReputation = common.HexToAddress("0x8004B663056A597Dffe9eCcC1965A193B7388713")
)

// specs is indexed by ID; every ID below numChains must have an entry.
var specs = [numChains]Spec{
	Base: {
		ID: Base, Slug: "base", Name: "Base", ChainID: 8453,
		DefaultRPC:         "https://mainnet.base.org",
		IdentityRegistry:   mainnetIdentity,
		ReputationRegistry: mainnetReputation,
	},
	BaseSepolia: {
		ID: BaseSepolia, Slug: "base-sepolia", Name: "Base Sepolia", ChainID: 84532,
		DefaultRPC:         "https://sepolia.base.org",
		IdentityRegistry:   testnetIdentity,
		ReputationRegistry: testnetReputation,
	},
	Ethereum: {
		ID: Ethereum, Slug: "ethereum", Name: "Ethereum", ChainID: 1,
		DefaultRPC:         "https://eth.llamarpc.com",
		IdentityRegistry:   mainnetIdentity,
		ReputationRegistry: mainnetReputation,
	},
	Sepolia: {
		ID: Sepolia, Slug: "sepolia", Name: "Ethereum Sepolia", ChainID: 11155111,
		DefaultRPC:         "https://ethereum-sepolia-rpc.publicnode.com",
		IdentityRegistry:   testnetIdentity,
		ReputationRegistry: testnetReputation,
	},
}

// Spec returns the registry configuration for id. It panics on an ID outside
// the enum, which can only happen through a bad conversion.
func (id ID) Spec() Spec {
	if !id.Valid() {
		panic(fmt.Sprintf("chain: invalid id %d", int(id)))
	}
	return specs[id]
}

// Valid reports whether id is one of the declared chains.
func (id ID) Valid() bool {
	return id >= 0 && id < numChains
}

// String returns the chain's slug.
func (id ID) String() string {
	if !id.Valid() {
		return "unknown"
	}
	return specs[id].Slug
}

// MarshalText encodes the chain as its slug.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, ErrUnknownChain
	}
	return []byte(specs[id].Slug), nil
}

// Parse resolves a slug such as "base-sepolia" (case-insensitive).
func Parse(slug string) (ID, error) {
	s := strings.ToLower(strings.TrimSpace(slug))
	for _, spec := range specs {
		if spec.Slug == s {
			return spec.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChain, slug)
}

// All returns every supported chain in declaration order.
func All() []ID {
	out := make([]ID, 0, numChains)
	for id := ID(0); id < numChains; id++ {
		out = append(out, id)
	}
	return out
}
