package chains

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Network
		wantErr bool
	}{
		{"ethereum", Ethereum, false},
		{"ETHEREUM", Ethereum, false},
		{" eth ", Ethereum, false},
		{"bnb", BSC, false},
		{"matic", Polygon, false},
		{"arb", Arbitrum, false},
		{"op", Optimism, false},
		{"avax", Avalanche, false},
		{"ftm", Fantom, false},
		{"solana", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownNetwork))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll_RankOrder(t *testing.T) {
	all := All()
	require.Len(t, all, 7)
	assert.Equal(t, Ethereum, all[0])
	assert.Equal(t, Fantom, all[len(all)-1])
}

func TestSortByRank_UnknownLast(t *testing.T) {
	networks := []Network{"zeta", Fantom, Ethereum, Polygon}
	SortByRank(networks)
	assert.Equal(t, []Network{Ethereum, Polygon, Fantom, "zeta"}, networks)
}

func TestLookup(t *testing.T) {
	m, ok := Lookup(Polygon)
	require.True(t, ok)
	assert.Equal(t, 137, m.ChainID)
	assert.Equal(t, "MATIC", m.Currency)

	p, ok := DefaultProviderFor(Optimism)
	require.True(t, ok)
	assert.Equal(t, "OPTIMISTIC_ETHERSCAN", p.EnvKey)

	_, ok = Lookup("unknown")
	assert.False(t, ok)
}
