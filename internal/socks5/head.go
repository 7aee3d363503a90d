package socks5

import (
	"io"
	"slices"
)

// AuthRequest is the client's method selection message.
//
//	+----+----------+----------+
//	|VER | NMETHODS | METHODS  |
//	+----+----------+----------+
//	| 1  |    1     | 1 to 255 |
//	+----+----------+----------+
type AuthRequest struct {
	Methods []Method
}

// Offers reports whether m is among the offered methods.
func (a AuthRequest) Offers(m Method) bool {
	return slices.Contains(a.Methods, m)
}

func (a AuthRequest) AppendPayload(b []byte) []byte {
	methods := a.Methods
	if len(methods) > 255 {
		methods = methods[:255]
	}
	b = append(b, byte(len(methods)))
	for _, m := range methods {
		b = append(b, byte(m))
	}
	return b
}

func decodeAuthRequest(r io.Reader) (AuthRequest, error) {
	raw, err := readVariable(r)
	if err != nil {
		return AuthRequest{}, err
	}
	methods := make([]Method, 0, len(raw))
	for _, b := range raw {
		m, err := parseMethod(b)
		if err != nil {
			return AuthRequest{}, err
		}
		methods = append(methods, m)
	}
	return AuthRequest{Methods: methods}, nil
}

// ReadAuthRequest reads a versioned AuthRequest.
func ReadAuthRequest(r io.Reader) (AuthRequest, error) {
	return readFramed(r, decodeAuthRequest)
}

// AuthResponse is the server's method selection reply.
//
//	+----+--------+
//	|VER | METHOD |
//	+----+--------+
//	| 1  |   1    |
//	+----+--------+
type AuthResponse struct {
	Method Method
}

func (a AuthResponse) AppendPayload(b []byte) []byte {
	return append(b, byte(a.Method))
}

func decodeAuthResponse(r io.Reader) (AuthResponse, error) {
	b, err := readByte(r)
	if err != nil {
		return AuthResponse{}, err
	}
	m, err := parseMethod(b)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Method: m}, nil
}

// ReadAuthResponse reads a versioned AuthResponse.
func ReadAuthResponse(r io.Reader) (AuthResponse, error) {
	return readFramed(r, decodeAuthResponse)
}

// UserPassRequest is the RFC 1929 sub-negotiation request. It carries its own
// sub-version byte instead of the SOCKS version.
//
//	+----+------+----------+------+----------+
//	|VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+----+------+----------+------+----------+
//	| 1  |  1   | 1 to 255 |  1   | 1 to 255 |
//	+----+------+----------+------+----------+
type UserPassRequest struct {
	Username []byte
	Password []byte
}

func (u UserPassRequest) AppendPayload(b []byte) []byte {
	b = append(b, userPassVersion)
	b = appendVariable(b, u.Username)
	return appendVariable(b, u.Password)
}

func appendVariable(b, v []byte) []byte {
	if len(v) > 255 {
		v = v[:255]
	}
	b = append(b, byte(len(v)))
	return append(b, v...)
}

// Write writes the request and flushes.
func (u UserPassRequest) Write(w io.Writer) error {
	return wrapIO("write", writeAll(w, u.AppendPayload(nil)))
}

// ReadUserPassRequest reads a sub-negotiation request.
func ReadUserPassRequest(r io.Reader) (UserPassRequest, error) {
	if err := readUserPassVersion(r); err != nil {
		return UserPassRequest{}, err
	}
	uname, err := readVariable(r)
	if err != nil {
		return UserPassRequest{}, err
	}
	passwd, err := readVariable(r)
	if err != nil {
		return UserPassRequest{}, err
	}
	return UserPassRequest{Username: uname, Password: passwd}, nil
}

// Sub-negotiation status values. Any non-zero status is a failure.
const (
	UserPassStatusSuccess byte = 0x00
	UserPassStatusFailure byte = 0x01
)

// UserPassResponse is the RFC 1929 sub-negotiation response.
//
//	+----+--------+
//	|VER | STATUS |
//	+----+--------+
//	| 1  |   1    |
//	+----+--------+
type UserPassResponse struct {
	Status byte
}

// OK reports whether the server accepted the credentials.
func (u UserPassResponse) OK() bool {
	return u.Status == UserPassStatusSuccess
}

func (u UserPassResponse) AppendPayload(b []byte) []byte {
	return append(b, userPassVersion, u.Status)
}

// Write writes the response and flushes.
func (u UserPassResponse) Write(w io.Writer) error {
	return wrapIO("write", writeAll(w, u.AppendPayload(nil)))
}

// ReadUserPassResponse reads a sub-negotiation response.
func ReadUserPassResponse(r io.Reader) (UserPassResponse, error) {
	if err := readUserPassVersion(r); err != nil {
		return UserPassResponse{}, err
	}
	status, err := readByte(r)
	if err != nil {
		return UserPassResponse{}, err
	}
	return UserPassResponse{Status: status}, nil
}

func readUserPassVersion(r io.Reader) error {
	ver, err := readByte(r)
	if err != nil {
		return err
	}
	if ver != userPassVersion {
		return newError(GeneralFailure, "unsupported sub-negotiation version %#x", ver)
	}
	return nil
}

// Request is the header a client sends after authentication.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
type Request struct {
	Command Command
	Address Address
}

func (h Request) AppendPayload(b []byte) []byte {
	b = append(b, byte(h.Command), 0x00)
	return h.Address.AppendPayload(b)
}

func decodeRequest(r io.Reader) (Request, error) {
	var buf [2]byte
	if err := readFull(r, buf[:]); err != nil {
		return Request{}, err
	}
	cmd, err := parseCommand(buf[0])
	if err != nil {
		return Request{}, err
	}
	addr, err := ReadAddress(r)
	if err != nil {
		return Request{}, err
	}
	return Request{Command: cmd, Address: addr}, nil
}

// ReadRequest reads a versioned Request.
func ReadRequest(r io.Reader) (Request, error) {
	return readFramed(r, decodeRequest)
}

// Response is the header a server answers a Request with.
//
//	+----+-----+-------+------+----------+----------+
//	|VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
type Response struct {
	Reply   Reply
	Address Address
}

func (h Response) AppendPayload(b []byte) []byte {
	b = append(b, byte(h.Reply), 0x00)
	return h.Address.AppendPayload(b)
}

func decodeResponse(r io.Reader) (Response, error) {
	var buf [2]byte
	if err := readFull(r, buf[:]); err != nil {
		return Response{}, err
	}
	rep, err := parseReply(buf[0])
	if err != nil {
		return Response{}, err
	}
	addr, err := ReadAddress(r)
	if err != nil {
		return Response{}, err
	}
	return Response{Reply: rep, Address: addr}, nil
}

// ReadResponse reads a versioned Response.
func ReadResponse(r io.Reader) (Response, error) {
	return readFramed(r, decodeResponse)
}
