package wire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HexBytes transports a byte slice as a hex-encoded JSON string, per the
// wire rule that "all byte fields are hex-encoded for JSON transport."
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("wire: hex bytes field is not a JSON string: %w", err)
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("wire: invalid hex bytes field: %w", err)
	}
	*b = decoded
	return nil
}
