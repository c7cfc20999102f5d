// Package wallet validates and normalizes EVM wallet addresses.
package wallet

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAddress is returned for anything that is not 0x + 40 hex digits.
	ErrInvalidAddress = errors.New("invalid wallet address")
	// ErrBadChecksum is returned for a mixed-case address whose EIP-55
	// checksum does not match.
	ErrBadChecksum = errors.New("wallet address checksum mismatch")
)

// Normalize validates address and returns its lower-case form. All-lower and
// all-upper hex are accepted as-is; mixed case must carry a valid checksum.
func Normalize(address string) (string, error) {
	addr := strings.TrimSpace(address)
	// IsHexAddress alone also accepts a bare 40-digit body.
	if len(addr) != 2*common.AddressLength+2 || !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}

	body := addr[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if Checksum(addr) != "0x"+body {
			return "", ErrBadChecksum
		}
	}
	return "0x" + strings.ToLower(body), nil
}

// Checksum renders an address in EIP-55 mixed case.
func Checksum(address string) string {
	return common.HexToAddress(address).Hex()
}
