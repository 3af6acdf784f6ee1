package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	types := []string{TypeHello, TypeWelcome, TypeFill, TypeSet, TypeAck, TypeError}
	urls := make(map[string]string, len(types))
	for _, typ := range types {
		name := strings.ToLower(typ) + ".schema.json"
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = err
			return
		}
		url := "mem://schemas/" + name
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
		urls[typ] = url
	}
	out := make(map[string]*jsonschema.Schema, len(urls))
	for typ, url := range urls {
		s, err := c.Compile(url)
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", url, err)
			return
		}
		out[typ] = s
	}
	schemas = out
}

// Schema returns the compiled schema for a message type.
func Schema(typ string) (*jsonschema.Schema, error) {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return nil, schemaErr
	}
	s, ok := schemas[typ]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", typ)
	}
	return s, nil
}

// ValidationError reports a frame rejected before it reached the world.
type ValidationError struct {
	Code string
	Err  error
}

func (e *ValidationError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateMessage checks raw against the schema of its declared type and
// the protocol version.
func ValidateMessage(raw []byte) (BaseMessage, error) {
	base, err := DecodeBase(raw)
	if err != nil {
		return base, &ValidationError{Code: ErrProtoBadRequest, Err: err}
	}
	s, err := Schema(base.Type)
	if err != nil {
		return base, &ValidationError{Code: ErrProtoBadRequest, Err: err}
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return base, &ValidationError{Code: ErrProtoBadRequest, Err: err}
	}
	if err := s.Validate(doc); err != nil {
		return base, &ValidationError{Code: ErrProtoBadRequest, Err: err}
	}
	if base.ProtocolVersion != Version {
		return base, &ValidationError{Code: ErrProtoVersion, Err: fmt.Errorf("protocol version %q, want %q", base.ProtocolVersion, Version)}
	}
	return base, nil
}
