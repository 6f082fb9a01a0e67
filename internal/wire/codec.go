package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/keelfs/keeld/internal/codes"
)

// ErrShortRead is returned when a fixed-width read encounters EOF or a
// partial stream before the declared width is satisfied. Callers at the
// server boundary translate this to codes.SlowStreamRate.
var ErrShortRead = fmt.Errorf("wire: short read")

// EncodeHeader marshals h to JSON and right-pads it with ASCII spaces to
// width bytes. It fails if the marshaled JSON already exceeds width.
func EncodeHeader(h *Header, width int) ([]byte, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(raw) > width {
		return nil, fmt.Errorf("wire: header %d bytes exceeds configured width %d", len(raw), width)
	}
	padded := make([]byte, width)
	copy(padded, raw)
	for i := len(raw); i < width; i++ {
		padded[i] = ' '
	}
	return padded, nil
}

// WriteHeader encodes and writes h as a single fixed-width frame.
func WriteHeader(w io.Writer, h *Header, width int) error {
	buf, err := EncodeHeader(h, width)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadHeader reads exactly width bytes and parses the space-trimmed JSON
// prefix into a Header. Any read failure that leaves fewer than width bytes
// is reported as ErrShortRead, which the caller is expected to translate
// into codes.SlowStreamRate.
func ReadHeader(r io.Reader, width int) (*Header, error) {
	buf := make([]byte, width)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	trimmed := bytes.TrimRight(buf, " ")
	var h Header
	if err := json.Unmarshal(trimmed, &h); err != nil {
		return nil, codes.New(codes.InvalidHeaderSemantic, err.Error())
	}
	return &h, nil
}

// ReadAuth reads exactly size bytes declared by header.AuthSize and parses
// them as an Auth component. size == 0 is a caller error; callers should
// skip the call entirely when AuthSize is 0.
func ReadAuth(r io.Reader, size int) (*Auth, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	var a Auth
	if err := json.Unmarshal(buf, &a); err != nil {
		return nil, codes.New(codes.InvalidAuthSemantic, err.Error())
	}
	return &a, nil
}

// ReadBodyRaw reads exactly size declared bytes and returns them unparsed,
// so the dispatcher can unmarshal into the category-specific body type
// (FileBody, PermissionBody, InfoBody) once the category is known.
func ReadBodyRaw(r io.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	return buf, nil
}

// DecodeFileBody unmarshals raw bytes into a FileBody, wrapping parse
// failures as codes.InvalidBodyValues.
func DecodeFileBody(raw []byte) (*FileBody, error) {
	var b FileBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, codes.New(codes.InvalidBodyValues, err.Error())
	}
	if !FilenamePattern.MatchString(b.SubjectFile) {
		return nil, codes.New(codes.InvalidBodyValues, "subject_file does not match the allowed pattern")
	}
	return &b, nil
}

// DecodePermissionBody unmarshals raw bytes into a PermissionBody.
func DecodePermissionBody(raw []byte) (*PermissionBody, error) {
	var b PermissionBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, codes.New(codes.InvalidBodyValues, err.Error())
	}
	if b.EffectDuration != nil && (*b.EffectDuration < 0 || *b.EffectDuration > MaxEffectDuration) {
		return nil, codes.New(codes.InvalidBodyValues, "effect_duration out of range")
	}
	return &b, nil
}

// DecodeInfoBody unmarshals raw bytes into an InfoBody.
func DecodeInfoBody(raw []byte) (*InfoBody, error) {
	var b InfoBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, codes.New(codes.InvalidBodyValues, err.Error())
	}
	return &b, nil
}

// DecodeAuthBody unmarshals raw bytes into an AuthBody.
func DecodeAuthBody(raw []byte) (*AuthBody, error) {
	var b AuthBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, codes.New(codes.InvalidBodyValues, err.Error())
	}
	return &b, nil
}

// WriteBody marshals and writes an arbitrary response body as one JSON blob
// with no framing beyond the bytes themselves; its length is carried in the
// preceding response header's BodySize field.
func WriteBody(w io.Writer, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
