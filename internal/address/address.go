package address

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"strings"
)

const (
	// CurrencyICP is the native ledger currency; its addresses are plain hex.
	CurrencyICP = "ICP"
	// CurrencyBTC addresses carry a segwit-style prefix.
	CurrencyBTC = "BTC"
	// CurrencyETH addresses carry a 0x prefix.
	CurrencyETH = "ETH"
)

var accountDomainSeparator = []byte("\x0Aaccount-id")

// Deriver derives display addresses for (owner, currency) pairs.
//
// Every address is salted with the identity of the running service, so the
// output is stable for a given SERVICE_ID but changing that identity changes
// every derived address.
type Deriver struct {
	serviceID string
}

// New returns a Deriver salted with the given service identity.
func New(serviceID string) *Deriver {
	return &Deriver{serviceID: serviceID}
}

// Derive returns the address of owner's wallet in currency. Unknown currency
// codes fall back to the plain hex encoding.
func (d *Deriver) Derive(owner, currency string) string {
	account := hex.EncodeToString(d.accountIdentifier(owner))

	switch strings.ToUpper(currency) {
	case CurrencyBTC:
		return "bc1q" + account
	case CurrencyETH:
		return "0x" + account
	default:
		return account
	}
}

// accountIdentifier builds crc32(h) || h where
// h = sha224(separator || service || sha256(owner)).
func (d *Deriver) accountIdentifier(owner string) []byte {
	subaccount := sha256.Sum256([]byte(owner))

	h := sha256.New224()
	h.Write(accountDomainSeparator)
	h.Write([]byte(d.serviceID))
	h.Write(subaccount[:])
	sum := h.Sum(nil)

	out := make([]byte, 4, 4+len(sum))
	binary.BigEndian.PutUint32(out, crc32.ChecksumIEEE(sum))
	return append(out, sum...)
}
