package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDefinition = "cohortql/definition/v1"
	DomainStatements = "cohortql/statements/v1"
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

// DefinitionHash computes the content address of a serialized cohort
// definition. Callers pass the portable JSON encoding, which is already
// deterministic for a given definition.
func DefinitionHash(portable []byte) string {
	return hashWithDomain(DomainDefinition, portable)
}

// StatementsHash computes the content address of a compiled statement list.
// Statements are joined with a null byte so that boundaries are unambiguous.
func StatementsHash(statements []string) string {
	return hashWithDomain(DomainStatements, []byte(strings.Join(statements, "\x00")))
}
