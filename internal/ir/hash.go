package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRequest  = "docsql/request/v1"
	DomainCompiled = "docsql/compiled/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestHash computes the content address of a compile request document.
// Requests that differ only in key order hash differently, because key
// order changes the compiled SQL.
func RequestHash(request Value) (string, error) {
	canonical, err := MarshalCanonical(request)
	if err != nil {
		return "", fmt.Errorf("RequestHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// CompiledHash computes the content address of a compiled statement.
// Args are hashed through their canonical document form.
func CompiledHash(sql string, args []any) (string, error) {
	arr := make(Array, len(args))
	for i, a := range args {
		v, ok := FromNative(a)
		if !ok {
			return "", fmt.Errorf("CompiledHash: arg %d has unsupported type %T", i, a)
		}
		arr[i] = v
	}

	canonical, err := MarshalCanonical(Obj(O("sql", String(sql)), O("args", arr)))
	if err != nil {
		return "", fmt.Errorf("CompiledHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCompiled, canonical), nil
}

// MustRequestHash is like RequestHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestHash(request Value) string {
	hash, err := RequestHash(request)
	if err != nil {
		panic(err)
	}
	return hash
}
