package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// OptionOrder(address maker,address collateralToken,uint256[] strikes,uint256 expiry,uint256 orderExpiry,uint256 price,uint256 maxCollateral,uint8 direction,uint8 side,bytes extraData)
	optionOrderTypeHash = ethcrypto.Keccak256(
		[]byte("OptionOrder(address maker,address collateralToken,uint256[] strikes,uint256 expiry,uint256 orderExpiry,uint256 price,uint256 maxCollateral,uint8 direction,uint8 side,bytes extraData)"),
	)
)

// domainName and domainVersion identify the vault's EIP-712 signing domain.
const (
	domainName    = "OptionsVault"
	domainVersion = "1"
)

// OrderDigest computes the EIP-712 digest of an option order for the given
// chain ID. The digest doubles as the order's stable hash in the
// consumed-order set.
func OrderDigest(order domain.OptionOrder, chainID int) []byte {
	domainSep := buildDomainSeparator(domainName, domainVersion, chainID)
	return eip712Hash(domainSep, orderStructHash(order))
}

// OrderHashHex returns the 0x-prefixed hex encoding of the order digest.
func OrderHashHex(order domain.OptionOrder, chainID int) string {
	return "0x" + hex.EncodeToString(OrderDigest(order, chainID))
}

// RecoverSigner recovers the address that produced the given hex-encoded
// 65-byte signature over a 32-byte digest. It returns
// domain.ErrInvalidSignature for malformed or unrecoverable signatures.
func RecoverSigner(digest []byte, signature string) (common.Address, error) {
	sigHex := strings.TrimPrefix(signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verifier: decode signature: %w", domain.ErrInvalidSignature)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/verifier: signature length %d: %w", len(sig), domain.ErrInvalidSignature)
	}

	// Normalise v from {27,28} to {0,1} as expected by SigToPub.
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("crypto/verifier: recovery byte %d: %w", sig[64], domain.ErrInvalidSignature)
	}

	norm := make([]byte, 65)
	copy(norm, sig[:64])
	norm[64] = v

	pub, err := ethcrypto.SigToPub(digest, norm)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verifier: recover: %w", domain.ErrInvalidSignature)
	}

	return ethcrypto.PubkeyToAddress(*pub), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// orderStructHash encodes and hashes an OptionOrder according to EIP-712.
// Dynamic fields (the strike array and extra data) are hashed before being
// folded into the struct encoding.
func orderStructHash(o domain.OptionOrder) []byte {
	strikeWords := make([]byte, 0, len(o.Strikes)*32)
	for _, s := range o.Strikes {
		strikeWords = append(strikeWords, bigIntTo32Bytes(big.NewInt(s))...)
	}

	direction := int64(0)
	if o.Direction == domain.DirectionShort {
		direction = 1
	}
	side := int64(0)
	if o.Side == domain.OptionSidePut {
		side = 1
	}

	maker := common.HexToAddress(o.Maker)
	token := common.HexToAddress(o.CollateralToken)

	return ethcrypto.Keccak256(
		concatBytes(
			optionOrderTypeHash,
			common.LeftPadBytes(maker.Bytes(), 32),
			common.LeftPadBytes(token.Bytes(), 32),
			ethcrypto.Keccak256(strikeWords),
			bigIntTo32Bytes(big.NewInt(o.Expiry)),
			bigIntTo32Bytes(big.NewInt(o.OrderExpiry)),
			bigIntTo32Bytes(big.NewInt(o.Price)),
			bigIntTo32Bytes(big.NewInt(o.MaxCollateral)),
			bigIntTo32Bytes(big.NewInt(direction)),
			bigIntTo32Bytes(big.NewInt(side)),
			ethcrypto.Keccak256(o.ExtraData),
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
