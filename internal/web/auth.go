package web

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Headers carried by every mutating request.
const (
	HeaderCaller    = "X-Caller"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

const defaultMaxClockSkew = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrStaleRequest     = errors.New("request timestamp outside the accepted window")
)

// signedPayload is the EIP-191 message a caller signs: method, path, unix timestamp and the
// keccak256 of the body, newline separated.
func signedPayload(method, path string, timestamp int64, body []byte) []byte {
	return []byte(fmt.Sprintf("dlprewards\n%s\n%s\n%d\n%s", method, path, timestamp, crypto.Keccak256Hash(body).Hex()))
}

// SignRequest produces the X-Signature value for a request.
func SignRequest(key *ecdsa.PrivateKey, method, path string, timestamp int64, body []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(signedPayload(method, path, timestamp, body)), key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// verifyRequest recovers the signer of a request and checks it against the claimed caller.
func verifyRequest(method, path, caller, timestamp, signature string, body []byte, now time.Time, maxSkew time.Duration) (common.Address, error) {
	if caller == "" || timestamp == "" || signature == "" {
		return common.Address{}, ErrMissingSignature
	}
	if !common.IsHexAddress(caller) {
		return common.Address{}, fmt.Errorf("%w: bad caller address", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return common.Address{}, ErrStaleRequest
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer, err := ecRecover(accounts.TextHash(signedPayload(method, path, ts, body)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != common.HexToAddress(caller) {
		return common.Address{}, fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer.Hex())
	}
	return signer, nil
}

// ecRecover accepts both 0/1 and 27/28 recovery ids.
func ecRecover(hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes long", crypto.SignatureLength)
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errors.New("invalid recovery id")
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
