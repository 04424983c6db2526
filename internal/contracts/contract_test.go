package contracts

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
)

func TestAddressTableGet(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000aaa")
	table := AddressTable{chain.BscMainnet: addr}

	got, err := table.Get(chain.BscMainnet)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = table.Get(chain.EthereumMainnet)
	assert.Error(t, err)
}
