package walletconnect

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"moff.io/moff-wallet/pkg/errors"
)

var (
	ErrInvalidURI         = errors.New("invalid wallet connect uri")
	ErrUnsupportedVersion = errors.New("unsupported wallet connect version")
)

const schemePrefixLen = len("wc:")

// PairingURI is the decoded form of wc:<topic>@<version>?<params>. Bridge holds the topic part, for legacy
// version 1 uris it is the handshake topic and the bridge server lives in Parameters["bridge"].
type PairingURI struct {
	Bridge     string            `json:"bridge"`
	Version    string            `json:"version"`
	Parameters map[string]string `json:"parameters"`

	// first value that failed percent decoding or was not utf-8 after it
	decodeErr error
}

// ParseURI never validates, garbage in gives garbage fields. A segment that cannot be percent-decoded is kept
// raw and Validate reports it.
func ParseURI(uri string) *PairingURI {
	result := &PairingURI{Parameters: map[string]string{}}
	head, tail, _ := strings.Cut(uri, "?")

	bridgeAndVersion := strings.Split(head, "@")
	if len(bridgeAndVersion[0]) > schemePrefixLen {
		result.Bridge = bridgeAndVersion[0][schemePrefixLen:]
	}
	if len(bridgeAndVersion) > 1 {
		result.Version = bridgeAndVersion[1]
	}

	if tail == "" {
		return result
	}
	for _, pair := range strings.Split(tail, "&") {
		parts := strings.Split(pair, "=")
		values := make([]string, 0, len(parts)-1)
		for _, v := range parts[1:] {
			decoded, err := url.PathUnescape(v)
			if err == nil && !utf8.ValidString(decoded) {
				err = errors.Errorf("%q is not utf-8 after decoding", v)
			}
			if err != nil {
				if result.decodeErr == nil {
					result.decodeErr = errors.Wrapf(err, "parameter %s", parts[0])
				}
			} else {
				v = decoded
			}
			values = append(values, v)
		}
		result.Parameters[parts[0]] = strings.Join(values, "=")
	}
	return result
}

// ValidateURI reports whether uri can start a pairing. It fails closed: any parse failure is false.
func ValidateURI(uri string) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			valid = false
		}
	}()
	return ParseURI(uri).Validate() == nil
}

// Validate requires the topic, the version, a relay hint and a key.
func (p *PairingURI) Validate() error {
	switch {
	case p.decodeErr != nil:
		return errors.WithMessage(ErrInvalidURI, "malformed percent encoding: "+p.decodeErr.Error())
	case p.Bridge == "":
		return errors.WithMessage(ErrInvalidURI, "missing topic")
	case p.Version == "":
		return errors.WithMessage(ErrInvalidURI, "missing version")
	case len(p.Parameters) == 0:
		return errors.WithMessage(ErrInvalidURI, "missing parameters")
	case p.RelayProtocol() == "" && p.Parameters["bridge"] == "":
		return errors.WithMessage(ErrInvalidURI, "missing relay protocol or bridge")
	case p.SymKey() == "":
		return errors.WithMessage(ErrInvalidURI, "missing symmetric key")
	}
	return nil
}

// RelayProtocol accepts both the dashed v2 spelling and the camel case one some dapps emit.
func (p *PairingURI) RelayProtocol() string {
	if v := p.Parameters["relay-protocol"]; v != "" {
		return v
	}
	return p.Parameters["relayProtocol"]
}

// SymKey returns the v2 symKey or the legacy key.
func (p *PairingURI) SymKey() string {
	if v := p.Parameters["symKey"]; v != "" {
		return v
	}
	return p.Parameters["key"]
}

func (p *PairingURI) IsLegacy() bool {
	return p.Version == "1"
}

func (p *PairingURI) String() string {
	var b strings.Builder
	b.WriteString("wc:")
	b.WriteString(p.Bridge)
	b.WriteString("@")
	b.WriteString(p.Version)
	keys := make([]string, 0, len(p.Parameters))
	for k := range p.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(encodeComponent(p.Parameters[k]))
	}
	return b.String()
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
