package client

import (
	"encoding/json"
	"fmt"

	"github.com/keelfs/keeld/internal/wire"
)

// DefaultChunkSize is used by the chunking helpers when a caller doesn't
// specify one.
const DefaultChunkSize = 64 * 1024

// FileResult is the decoded wire.FileBody a FILE_OP exchange returns,
// plus whether the server reported this as the final chunk.
type FileResult struct {
	CursorPosition int64
	Data           []byte
	EOF            bool
	Response       *Response
}

func decodeFileResult(resp *Response) (*FileResult, error) {
	var body wire.FileBody
	if len(resp.RawBody) > 0 {
		if err := json.Unmarshal(resp.RawBody, &body); err != nil {
			return nil, fmt.Errorf("client: decode file body: %w", err)
		}
	}
	cursor := int64(0)
	if body.CursorPosition != nil {
		cursor = *body.CursorPosition
	}
	return &FileResult{CursorPosition: cursor, Data: body.WriteData, EOF: body.EndOperation, Response: resp}, nil
}

// Create is FILE_OP/CREATE.
func (c *Client) Create(owner, filename string) (*FileResult, error) {
	resp, err := c.Do(Exchange{
		Category:    wire.CategoryFileOp,
		Subcategory: wire.SubFileCreate,
		Auth:        c.bearerAuth(),
		Body:        wire.FileBody{SubjectFile: filename, SubjectFileOwner: owner},
	})
	if err != nil {
		return nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	return decodeFileResult(resp)
}

// Delete is FILE_OP/DELETE. Only the file's owner may call it.
func (c *Client) Delete(owner, filename string) (*Response, error) {
	return c.Do(Exchange{
		Category:    wire.CategoryFileOp,
		Subcategory: wire.SubFileDelete,
		Auth:        c.bearerAuth(),
		Body:        wire.FileBody{SubjectFile: filename, SubjectFileOwner: owner},
	})
}

// ReadChunk issues a single FILE_OP/READ starting at cursor, sized at
// chunkSize (DefaultChunkSize if zero). Use Read for a full-file helper
// that loops until EOF.
func (c *Client) ReadChunk(owner, filename string, cursor int64, chunkSize int, keepalive bool) (*FileResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	body := wire.FileBody{
		SubjectFile:      filename,
		SubjectFileOwner: owner,
		CursorPosition:   &cursor,
		ChunkSize:        &chunkSize,
		CursorKeepalive:  keepalive,
	}
	resp, err := c.Do(Exchange{Category: wire.CategoryFileOp, Subcategory: wire.SubFileRead, Auth: c.bearerAuth(), Body: body})
	if err != nil {
		return nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	return decodeFileResult(resp)
}

// Read reads an entire file by looping ReadChunk until the server reports
// end_operation, concatenating chunks in cursor order.
func (c *Client) Read(owner, filename string, chunkSize int) ([]byte, error) {
	var out []byte
	cursor := int64(0)
	for {
		result, err := c.ReadChunk(owner, filename, cursor, chunkSize, true)
		if err != nil {
			return out, err
		}
		out = append(out, result.Data...)
		cursor = result.CursorPosition
		if result.EOF {
			return out, nil
		}
	}
}

// amendChunk is the shared WRITE/APPEND/OVERWRITE chunk primitive: one
// subcategory, one slice of data, end marks whether this is the closing
// chunk of the operation (Amended vs. PartialAmend on the server side).
// postKeepalive only has an effect on the closing chunk: it sets the
// bitfield's PostOperationCursorKeepalive bit so the server retains the
// handle even past end_operation.
func (c *Client) amendChunk(sub wire.Subcategory, owner, filename string, data []byte, cursor *int64, end, keepalive, postKeepalive bool) (*FileResult, error) {
	var bitfield wire.CursorBit
	if keepalive {
		bitfield |= wire.CursorKeepalive
	}
	if end && postKeepalive {
		bitfield |= wire.PostOperationCursorKeepalive
	}
	body := wire.FileBody{
		SubjectFile:      filename,
		SubjectFileOwner: owner,
		CursorPosition:   cursor,
		WriteData:        data,
		CursorKeepalive:  keepalive,
		EndOperation:     end,
		CursorBitfield:   bitfield,
	}
	resp, err := c.Do(Exchange{Category: wire.CategoryFileOp, Subcategory: sub, Auth: c.bearerAuth(), Body: body})
	if err != nil {
		return nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	return decodeFileResult(resp)
}

// WriteChunk is one FILE_OP/WRITE at the given cursor.
func (c *Client) WriteChunk(owner, filename string, data []byte, cursor int64, end, keepalive, postKeepalive bool) (*FileResult, error) {
	return c.amendChunk(wire.SubFileWrite, owner, filename, data, &cursor, end, keepalive, postKeepalive)
}

// AppendChunk is one FILE_OP/APPEND; the server tracks the cursor.
func (c *Client) AppendChunk(owner, filename string, data []byte, end, keepalive, postKeepalive bool) (*FileResult, error) {
	return c.amendChunk(wire.SubFileAppend, owner, filename, data, nil, end, keepalive, postKeepalive)
}

// OverwriteChunk is one FILE_OP/OVERWRITE; the first chunk of an
// overwrite truncates the file before writing.
func (c *Client) OverwriteChunk(owner, filename string, data []byte, end, keepalive, postKeepalive bool) (*FileResult, error) {
	return c.amendChunk(wire.SubFileOverwrite, owner, filename, data, nil, end, keepalive, postKeepalive)
}

// Write uploads the full contents of data as a chunked WRITE sequence
// starting at cursor 0, holding the handle open (CursorKeepalive) until
// the final chunk. postKeepalive controls whether the handle survives
// past that closing chunk.
func (c *Client) Write(owner, filename string, data []byte, chunkSize int, postKeepalive bool) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	cursor := int64(0)
	for {
		end := cursor+int64(chunkSize) >= int64(len(data))
		hi := cursor + int64(chunkSize)
		if hi > int64(len(data)) {
			hi = int64(len(data))
		}
		if _, err := c.WriteChunk(owner, filename, data[cursor:hi], cursor, end, !end, postKeepalive); err != nil {
			return err
		}
		cursor = hi
		if end {
			return nil
		}
	}
}

// Append uploads data as a chunked APPEND sequence.
func (c *Client) Append(owner, filename string, data []byte, chunkSize int, postKeepalive bool) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for pos := 0; pos < len(data) || len(data) == 0; {
		hi := pos + chunkSize
		if hi > len(data) {
			hi = len(data)
		}
		end := hi >= len(data)
		if _, err := c.AppendChunk(owner, filename, data[pos:hi], end, !end, postKeepalive); err != nil {
			return err
		}
		pos = hi
		if end {
			return nil
		}
	}
	return nil
}

// Overwrite replaces a file's contents wholesale, as a chunked OVERWRITE
// sequence.
func (c *Client) Overwrite(owner, filename string, data []byte, chunkSize int, postKeepalive bool) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for pos := 0; pos < len(data) || len(data) == 0; {
		hi := pos + chunkSize
		if hi > len(data) {
			hi = len(data)
		}
		end := hi >= len(data)
		if _, err := c.OverwriteChunk(owner, filename, data[pos:hi], end, !end, postKeepalive); err != nil {
			return err
		}
		pos = hi
		if end {
			return nil
		}
	}
	return nil
}

// Replace composes the client-side REPLACE verb: an OVERWRITE of the
// first chunk followed by APPEND for the rest, so the server never needs
// a dedicated REPLACE subcategory.
func (c *Client) Replace(owner, filename string, data []byte, chunkSize int, postKeepalive bool) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	first := chunkSize
	if first > len(data) {
		first = len(data)
	}
	onlyChunk := first >= len(data)
	if _, err := c.OverwriteChunk(owner, filename, data[:first], onlyChunk, !onlyChunk, postKeepalive); err != nil {
		return err
	}
	if onlyChunk {
		return nil
	}
	return c.Append(owner, filename, data[first:], chunkSize, postKeepalive)
}
