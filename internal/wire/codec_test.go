package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Version:         ProtocolVersion,
		AuthSize:        12,
		BodySize:        0,
		SenderHostname:  "client.local",
		SenderPort:      5555,
		SenderTimestamp: 1732999999.5,
		Finish:          false,
		Category:        CategoryAuth,
		Subcategory:     SubAuthLogin,
	}

	encoded, err := EncodeHeader(h, DefaultHeaderWidth)
	require.NoError(t, err)
	require.Len(t, encoded, DefaultHeaderWidth)

	decoded, err := ReadHeader(bytes.NewReader(encoded), DefaultHeaderWidth)
	require.NoError(t, err)

	// Compare as JSON content, ignoring the padding whitespace per §8.
	wantJSON, _ := json.Marshal(h)
	gotJSON, _ := json.Marshal(decoded)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestReadHeaderShortRead(t *testing.T) {
	short := make([]byte, DefaultHeaderWidth-1)
	_, err := ReadHeader(bytes.NewReader(short), DefaultHeaderWidth)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
}

func TestAuthValidate(t *testing.T) {
	cases := []struct {
		name    string
		auth    Auth
		wantErr bool
	}{
		{"valid password", Auth{Identity: "alice", Password: "correcthorse1"}, false},
		{"valid token", Auth{Identity: "alice", Token: HexBytes("abcd")}, false},
		{"both password and token", Auth{Identity: "alice", Password: "correcthorse1", Token: HexBytes("abcd")}, true},
		{"neither", Auth{Identity: "alice"}, true},
		{"digest without token", Auth{Identity: "alice", Password: "correcthorse1", RefreshDigest: HexBytes("ab")}, true},
		{"short identity", Auth{Identity: "ab", Password: "correcthorse1"}, true},
		{"short password", Auth{Identity: "alice", Password: "short"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.auth.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHexBytesJSON(t *testing.T) {
	b := HexBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `"deadbeef"`, string(raw))

	var decoded HexBytes
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, b, decoded)
}

func TestFileBodyEffectiveKeepalive(t *testing.T) {
	b := FileBody{CursorBitfield: CursorKeepalive, CursorKeepalive: false}
	assert.True(t, b.EffectiveKeepalive())

	b2 := FileBody{CursorKeepalive: true}
	assert.True(t, b2.EffectiveKeepalive())

	b3 := FileBody{CursorBitfield: PurgeCursor}
	assert.False(t, b3.EffectiveKeepalive())
	assert.True(t, b3.EffectivePurge())
}

func TestDecodeFileBodyRejectsBadFilename(t *testing.T) {
	raw := []byte(`{"subject_file": "../../etc/passwd!!", "subject_file_owner": "alice"}`)
	_, err := DecodeFileBody(raw)
	require.Error(t, err)
}
