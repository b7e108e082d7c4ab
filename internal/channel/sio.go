// ABOUTME: Minimal socket.io v4 / engine.io v4 packet codec for the WebSocket transport
// ABOUTME: Encodes namespace connects and events, decodes server packets and event arrays

package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// engine.io packet types
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// socket.io packet types
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
	sioBinaryEvent  = '5'
	sioBinaryAck    = '6'
)

// ErrProtocol reports a frame the client could not interpret.
var ErrProtocol = errors.New("socket.io protocol error")

// openPayload is the engine.io handshake sent by the server.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// packet is a decoded socket.io packet.
type packet struct {
	Type      byte
	Namespace string
	AckID     int64 // -1 when absent
	Data      json.RawMessage
}

func normalizeNamespace(ns string) string {
	if ns == "" {
		return "/"
	}
	if !strings.HasPrefix(ns, "/") {
		return "/" + ns
	}
	return ns
}

func namespacePrefix(ns string) string {
	ns = normalizeNamespace(ns)
	if ns == "/" {
		return ""
	}
	return ns + ","
}

// encodeConnect builds the engine.io message carrying a socket.io CONNECT for
// the namespace with the given auth payload.
func encodeConnect(ns string, auth any) (string, error) {
	data, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("encoding auth payload: %w", err)
	}
	return string([]byte{eioMessage, sioConnect}) + namespacePrefix(ns) + string(data), nil
}

// encodeEvent builds the engine.io message carrying a socket.io EVENT.
func encodeEvent(ns, name string, payload any) (string, error) {
	data, err := json.Marshal([]any{name, payload})
	if err != nil {
		return "", fmt.Errorf("encoding event %q: %w", name, err)
	}
	return string([]byte{eioMessage, sioEvent}) + namespacePrefix(ns) + string(data), nil
}

// decodePacket parses a socket.io packet (the engine.io message body, without
// the leading '4').
func decodePacket(s string) (packet, error) {
	if s == "" {
		return packet{}, fmt.Errorf("%w: empty packet", ErrProtocol)
	}

	p := packet{Type: s[0], Namespace: "/", AckID: -1}
	if p.Type < sioConnect || p.Type > sioBinaryAck {
		return packet{}, fmt.Errorf("%w: unknown packet type %q", ErrProtocol, p.Type)
	}
	rest := s[1:]

	if p.Type == sioBinaryEvent || p.Type == sioBinaryAck {
		i := strings.IndexByte(rest, '-')
		if i < 0 {
			return packet{}, fmt.Errorf("%w: binary packet without attachment count", ErrProtocol)
		}
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:i]
			rest = rest[i+1:]
		}
	}

	j := 0
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j > 0 {
		id, err := strconv.ParseInt(rest[:j], 10, 64)
		if err != nil {
			return packet{}, fmt.Errorf("%w: ack id: %v", ErrProtocol, err)
		}
		p.AckID = id
		rest = rest[j:]
	}

	if rest != "" {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// decodeEventData splits an EVENT data array into its name and first
// argument. Events without arguments yield a nil payload.
func decodeEventData(data json.RawMessage) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: event data: %v", ErrProtocol, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrProtocol)
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrProtocol, err)
	}
	if len(parts) == 1 {
		return name, nil, nil
	}
	return name, parts[1], nil
}

// connectErrorMessage extracts the message of a CONNECT_ERROR payload.
func connectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

// ParseEndpoint converts a socket URL into the engine.io WebSocket URL and the
// namespace to join. A path on the URL (http://host:4000/chat) names the
// namespace unless namespace is given explicitly.
func ParseEndpoint(raw, namespace string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing socket url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", "", fmt.Errorf("socket url must use http, https, ws or wss scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("socket url %q has no host", raw)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if path != "" && !strings.HasPrefix(path, "/socket.io") {
		if namespace == "" {
			namespace = path
		}
		u.Path = ""
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), normalizeNamespace(namespace), nil
}
