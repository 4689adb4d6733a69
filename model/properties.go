package model

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/siherrmann/storemapper/helper"
)

// Properties represents the JSONB property map of an entity stored in PostgreSQL
type Properties map[string]interface{}

// Value implements the driver.Valuer interface for database storage.
// Nil properties are stored as an empty object.
func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		p = Properties{}
	}
	return p.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (p *Properties) Scan(value interface{}) error {
	return p.Unmarshal(value)
}

// Marshal converts Properties to JSON bytes
func (p Properties) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Fingerprint returns the hex SHA-256 of the canonical JSON form (RFC 8785).
// Numbers are canonicalized in double precision, so integers beyond 2^53
// that differ only in the low bits share a fingerprint.
func (p Properties) Fingerprint() (string, error) {
	if p == nil {
		p = Properties{}
	}

	b, err := p.Marshal()
	if err != nil {
		return "", helper.NewError("marshal properties", err)
	}

	canonical, err := jsoncanonicalizer.Transform(b)
	if err != nil {
		return "", helper.NewError("canonicalize properties", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Unmarshal converts JSON bytes or Properties to Properties.
// Numbers are kept as json.Number so integer precision is preserved.
func (p *Properties) Unmarshal(value interface{}) error {
	if value == nil {
		*p = Properties{}
		return nil
	}

	if s, ok := value.(Properties); ok {
		*p = s
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	decoder := json.NewDecoder(bytes.NewReader(b))
	decoder.UseNumber()

	m := map[string]interface{}{}
	if err := decoder.Decode(&m); err != nil {
		return helper.NewError("unmarshal properties", err)
	}
	*p = m

	return nil
}

// Names returns the property names in sorted order
func (p Properties) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
