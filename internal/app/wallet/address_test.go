package wallet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumKnownVectors(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		assert.Equal(t, v, Checksum(v))
		norm, err := Normalize(v)
		require.NoError(t, err)
		assert.Equal(t, "0x", norm[:2])
		assert.Equal(t, len(v), len(norm))
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	cases := []string{"", "0x123", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00", "0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed"}
	for _, c := range cases {
		_, err := Normalize(c)
		assert.Truef(t, errors.Is(err, ErrInvalidAddress), "input %q", c)
	}

	_, err := Normalize("0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.True(t, errors.Is(err, ErrBadChecksum))
}

func TestNormalizeMatchesGethChecksum(t *testing.T) {
	// lower-case input round-trips to the same EIP-55 form geth renders
	lower := "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359"
	norm, err := Normalize(lower)
	require.NoError(t, err)
	assert.Equal(t, lower, norm)
	assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", Checksum(norm))

	upper := "0X" + "FB6916095CA1DF60BB79CE92CE3EA74C37C5D359"
	norm, err = Normalize(upper)
	require.NoError(t, err)
	assert.Equal(t, lower, norm)
}

func TestNormalizeAcceptsSingleCase(t *testing.T) {
	got, err := Normalize("  0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED ")
	require.NoError(t, err)
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", got)
}
