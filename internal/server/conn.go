package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/keelfs/keeld/internal/codes"
	"github.com/keelfs/keeld/internal/dispatch"
	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/wire"
)

// serveConn runs the per-connection request loop of §4.10: read a header,
// then its declared auth/body components, dispatch, and write back a
// response header plus body. It keeps the connection open across multiple
// exchanges (chunked file transfers rely on this) until the client sets
// Header.Finish, the peer closes the connection, or shutdown interrupts a
// blocking read.
func (s *Server) serveConn(conn net.Conn, remote string) {
	defer conn.Close()

	r := bufio.NewReader(conn)

	for {
		if s.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}

		header, err := wire.ReadHeader(r, s.headerWidth)
		if err != nil {
			// Either cause leaves framing in an unknown state (a short read
			// mid-header, or a header-width frame that didn't parse as
			// JSON), so the connection is closed after the error response
			// rather than continuing the loop.
			s.writeErrorHeader(conn, &wire.Header{}, err)
			return
		}

		req := &dispatch.Request{Header: header, ClientAddr: remote}

		if header.AuthSize > 0 {
			auth, err := wire.ReadAuth(r, header.AuthSize)
			if err != nil {
				s.writeErrorHeader(conn, header, asProtocolError(err))
				if header.Finish {
					return
				}
				continue
			}
			if err := auth.Validate(); err != nil {
				s.writeErrorHeader(conn, header, codes.New(codes.InvalidAuthSemantic, err.Error()))
				if header.Finish {
					return
				}
				continue
			}
			req.Auth = auth
		}

		if header.BodySize > 0 {
			raw, err := wire.ReadBodyRaw(r, header.BodySize)
			if err != nil {
				s.writeErrorHeader(conn, header, asProtocolError(err))
				if header.Finish {
					return
				}
				continue
			}
			req.RawBody = raw
		}

		resp := s.registry.Dispatch(context.Background(), req)

		if err := s.writeResponse(conn, header, resp); err != nil {
			logger.Warn("failed to write response", "addr", remote, logger.Err(err))
			return
		}

		if header.Finish {
			return
		}
	}
}

// writeResponse marshals resp onto conn as a header plus body, echoing the
// request's category/subcategory so the client can correlate the reply
// without re-parsing it. A Partial payload (set on errors that still
// carried partial file data, e.g. an interrupted chunked read) is written
// verbatim instead of being JSON-marshaled again.
func (s *Server) writeResponse(conn net.Conn, reqHeader *wire.Header, resp *dispatch.Response) error {
	var bodyBytes []byte
	var err error
	switch {
	case resp.Partial != nil:
		bodyBytes = resp.Partial
	case resp.Body != nil:
		bodyBytes, err = json.Marshal(resp.Body)
		if err != nil {
			return err
		}
	}

	respHeader := &wire.Header{
		Version:         wire.ProtocolVersion,
		BodySize:        len(bodyBytes),
		SenderTimestamp: float64(time.Now().UnixNano()) / 1e9,
		Finish:          reqHeader.Finish,
		Category:        reqHeader.Category,
		Subcategory:     reqHeader.Subcategory,
		Code:            string(resp.Code),
		Description:     resp.Description,
	}

	if err := wire.WriteHeader(conn, respHeader, s.headerWidth); err != nil {
		return err
	}
	if len(bodyBytes) > 0 {
		if _, err := conn.Write(bodyBytes); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) writeErrorHeader(conn net.Conn, reqHeader *wire.Header, err error) {
	pe := asProtocolError(err)
	_ = s.writeResponse(conn, reqHeader, &dispatch.Response{Code: pe.Code, Description: pe.Description, Partial: pe.Partial})
}

// asProtocolError translates an arbitrary read/dispatch error into the
// response code it should produce: a short or stalled read becomes
// SlowStreamRate per internal/wire's ErrShortRead contract, an existing
// *ProtocolError is passed through unchanged, and anything else is an
// unclassified server error.
func asProtocolError(err error) *codes.ProtocolError {
	if errors.Is(err, wire.ErrShortRead) {
		return codes.New(codes.SlowStreamRate, "short or stalled read")
	}
	var pe *codes.ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return codes.New(codes.ServerErrorGeneric, err.Error())
}
