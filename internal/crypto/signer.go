package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

// VenueAuth(address address,uint256 timestamp,uint256 nonce)
var venueAuthTypeHash = ethcrypto.Keccak256(
	[]byte("VenueAuth(address address,uint256 timestamp,uint256 nonce)"),
)

// Signer produces EIP-712 signatures with a secp256k1 key. The vault uses it
// to authenticate against the options venue API; tests use it to mint signed
// option orders.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and the
// target chain ID.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder signs an option order's EIP-712 digest. It returns a hex-encoded
// 65-byte signature (r || s || v with v in {27,28}).
func (s *Signer) SignOrder(order domain.OptionOrder) (string, error) {
	return s.signDigest(OrderDigest(order, s.chainID))
}

// SignAuthMessage signs a VenueAuth EIP-712 message used to derive an API key
// from the options venue.
func (s *Signer) SignAuthMessage(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			venueAuthTypeHash,
			common.LeftPadBytes(s.address.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(timestamp)),
			bigIntTo32Bytes(big.NewInt(nonce)),
		),
	)

	domainSep := buildDomainSeparator(domainName, domainVersion, s.chainID)
	return s.signDigest(eip712Hash(domainSep, structHash))
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 convention is {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}
