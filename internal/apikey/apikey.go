// Package apikey checks the shared secret callers pass as the "key" query
// parameter.
package apikey

import (
	"crypto/subtle"
	"errors"
	"net/url"
	"strings"
)

const Param = "key"

var (
	// ErrMissingKey means the request carried no key parameter at all.
	ErrMissingKey = errors.New("apikey: missing key")
	// ErrInvalidKey means a key was supplied but does not match.
	ErrInvalidKey = errors.New("apikey: invalid key")
)

type Authorizer struct {
	secret []byte
}

func NewAuthorizer(secret string) (*Authorizer, error) {
	if secret == "" {
		return nil, errors.New("apikey: secret must not be empty")
	}
	return &Authorizer{secret: []byte(secret)}, nil
}

// Check validates the first "key" value of a raw query string. An empty
// value counts as supplied, so "?key=" is ErrInvalidKey rather than
// ErrMissingKey. So does a key pair that cannot be parsed, such as
// "key=%zz" or "key=v;x=1".
func (a *Authorizer) Check(rawQuery string) error {
	q, err := url.ParseQuery(rawQuery)
	if !q.Has(Param) {
		if err != nil && namesParam(rawQuery) {
			return ErrInvalidKey
		}
		return ErrMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(q.Get(Param)), a.secret) != 1 {
		return ErrInvalidKey
	}
	return nil
}

// namesParam reports whether any pair in rawQuery, split the way a lenient
// parser would split it, is named Param.
func namesParam(rawQuery string) bool {
	pairs := strings.FieldsFunc(rawQuery, func(r rune) bool { return r == '&' || r == ';' })
	for _, pair := range pairs {
		name, _, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if name == Param {
			return true
		}
	}
	return false
}
