package trust

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Supported file-info hash algorithm names.
const (
	AlgSHA256  = "sha256"
	AlgSHA512  = "sha512"
	AlgBLAKE2B = "blake2b-256"
)

func computeHash(alg string, data []byte) (HexBytes, error) {
	switch alg {
	case AlgSHA256:
		digest := sha256.Sum256(data)
		return digest[:], nil
	case AlgSHA512:
		digest := sha512.Sum512(data)
		return digest[:], nil
	case AlgBLAKE2B:
		digest := blake2b.Sum256(data)
		return digest[:], nil
	default:
		return nil, ErrValue{Msg: fmt.Sprintf("unsupported hashing algorithm %s", alg)}
	}
}

func verifyLength(data []byte, length int64) error {
	if int64(len(data)) != length {
		return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("length verification failed - expected %d, got %d", length, len(data))}
	}
	return nil
}

func verifyHashes(data []byte, hashes Hashes) error {
	for alg, want := range hashes {
		got, err := computeHash(alg, data)
		if err != nil {
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - unknown hashing algorithm %s", alg)}
		}
		if hex.EncodeToString(want) != hex.EncodeToString(got) {
			return ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - mismatch for algorithm %s", alg)}
		}
	}
	return nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || len(data)%2 != 0 || data[0] != '"' || data[len(data)-1] != '"' {
		return ErrValue{Msg: "invalid JSON hex bytes"}
	}
	res := make([]byte, hex.DecodedLen(len(data)-2))
	if _, err := hex.Decode(res, data[1:len(data)-1]); err != nil {
		return err
	}
	*b = res
	return nil
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	res := make([]byte, hex.EncodedLen(len(b))+2)
	res[0] = '"'
	res[len(res)-1] = '"'
	hex.Encode(res[1:], b)
	return res, nil
}

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}
