package reconcile

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/grimswap/grimledger/internal/chain"
	"github.com/grimswap/grimledger/internal/domain"
)

// ModifyLiquidityTopic is the event signature topic of the pool manager's
// liquidity-modification event.
const ModifyLiquidityTopic = "0xf208f4912782fd25c7f114ca3723a2d5dd6f3bcc3ac8db5af63baecc7099c945"

// ErrDecode is returned for malformed logs. The offending log is skipped
// and the scan continues.
var ErrDecode = errors.New("malformed event log")

// Event payload layout: three 32-byte words (tickLower, tickUpper,
// liquidityDelta) followed by the 32-byte salt.
const (
	wordHexLen    = 64
	payloadHexLen = 4 * wordHexLen
)

// maxInt256 boundary for two's-complement decoding of signed words.
var (
	twoPow255 = new(big.Int).Lsh(big.NewInt(1), 255)
	twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

// DecodeModification parses a raw pool manager log into a liquidity
// modification. Topics: [signature, poolID, sender]. TxSender stays empty
// until attribution resolves the originating transaction.
func DecodeModification(l chain.Log) (*domain.LiquidityModification, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("%w: expected 3 topics, got %d", ErrDecode, len(l.Topics))
	}
	if l.Topics[0] != ModifyLiquidityTopic {
		return nil, fmt.Errorf("%w: unexpected signature topic %s", ErrDecode, l.Topics[0])
	}

	data := strings.TrimPrefix(l.Data, "0x")
	if len(data) != payloadHexLen {
		return nil, fmt.Errorf("%w: payload length %d, want %d", ErrDecode, len(data), payloadHexLen)
	}

	tickLower, err := decodeTick(data[0:wordHexLen])
	if err != nil {
		return nil, fmt.Errorf("%w: tick lower: %s", ErrDecode, err)
	}
	tickUpper, err := decodeTick(data[wordHexLen : 2*wordHexLen])
	if err != nil {
		return nil, fmt.Errorf("%w: tick upper: %s", ErrDecode, err)
	}
	delta, err := decodeSignedWord(data[2*wordHexLen : 3*wordHexLen])
	if err != nil {
		return nil, fmt.Errorf("%w: liquidity delta: %s", ErrDecode, err)
	}
	salt := "0x" + data[3*wordHexLen:]

	return &domain.LiquidityModification{
		PoolID:         l.Topics[1],
		Sender:         topicToAddress(l.Topics[2]),
		TickLower:      tickLower,
		TickUpper:      tickUpper,
		Salt:           salt,
		LiquidityDelta: delta,
		TxHash:         l.TxHash,
		BlockNumber:    l.BlockNumber,
		LogIndex:       l.LogIndex,
	}, nil
}

// decodeSignedWord parses one 32-byte word as a two's-complement integer.
func decodeSignedWord(word string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(word, 16)
	if !ok {
		return nil, fmt.Errorf("not a hex quantity: %q", word)
	}
	if v.Cmp(twoPow255) >= 0 {
		v.Sub(v, twoPow256)
	}
	return v, nil
}

// decodeTick parses a signed word and checks the int32 tick range.
func decodeTick(word string) (int32, error) {
	v, err := decodeSignedWord(word)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("tick out of range: %s", v)
	}
	t := v.Int64()
	if t < -8388608 || t > 8388607 {
		return 0, fmt.Errorf("tick out of range: %d", t)
	}
	return int32(t), nil
}

// topicToAddress extracts the 20-byte address from a left-padded topic.
func topicToAddress(topic string) string {
	h := strings.TrimPrefix(topic, "0x")
	if len(h) < 40 {
		return "0x" + h
	}
	return "0x" + h[len(h)-40:]
}
