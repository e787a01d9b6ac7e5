// Package subject validates NATS subjects and subject filters and provides
// wildcard matching with the same semantics the server applies.
package subject

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/c360/natsgate/errors"
)

const (
	// TokenSeparator splits a subject into tokens.
	TokenSeparator = "."
	// WildcardToken matches exactly one token in a filter.
	WildcardToken = "*"
	// FullWildcardToken matches one or more trailing tokens in a filter.
	FullWildcardToken = ">"
)

// MaxLength caps subject length the gateway accepts. NATS itself allows
// longer subjects but URLs this size indicate a client bug.
const MaxLength = 255

// Tokens splits a subject into its dot-separated tokens.
func Tokens(subject string) []string {
	return strings.Split(subject, TokenSeparator)
}

// Validate checks a publish subject. Publish subjects are literal: every
// token must be non-empty and wildcard-free.
func Validate(subject string) error {
	if subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidSubject, "subject", "Validate", "check empty subject")
	}
	if len(subject) > MaxLength {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject exceeds %d characters", errors.ErrInvalidSubject, MaxLength),
			"subject", "Validate", "check subject length")
	}

	for _, token := range Tokens(subject) {
		if token == WildcardToken || token == FullWildcardToken {
			return errors.WrapInvalid(
				fmt.Errorf("%w: wildcard token %q not allowed in publish subject", errors.ErrInvalidSubject, token),
				"subject", "Validate", "check wildcard")
		}
		if !isValidToken(token) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: invalid token %q", errors.ErrInvalidSubject, token),
				"subject", "Validate", "check token")
		}
	}
	return nil
}

// ValidateFilter checks a subscription filter. Filters allow '*' tokens
// anywhere and a single '>' as the final token.
func ValidateFilter(filter string) error {
	if filter == "" {
		return errors.WrapInvalid(errors.ErrInvalidSubject, "subject", "ValidateFilter", "check empty filter")
	}
	if len(filter) > MaxLength {
		return errors.WrapInvalid(
			fmt.Errorf("%w: filter exceeds %d characters", errors.ErrInvalidSubject, MaxLength),
			"subject", "ValidateFilter", "check filter length")
	}

	tokens := Tokens(filter)
	for i, token := range tokens {
		switch token {
		case WildcardToken:
			continue
		case FullWildcardToken:
			if i != len(tokens)-1 {
				return errors.WrapInvalid(
					fmt.Errorf("%w: '>' must be the final token", errors.ErrInvalidSubject),
					"subject", "ValidateFilter", "check full wildcard position")
			}
		default:
			if !isValidToken(token) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: invalid token %q", errors.ErrInvalidSubject, token),
					"subject", "ValidateFilter", "check token")
			}
		}
	}
	return nil
}

// Matches reports whether subject matches filter under NATS wildcard rules:
// '*' matches exactly one token, a trailing '>' matches one or more tokens.
func Matches(filter, subject string) bool {
	if filter == subject {
		return true
	}

	filterTokens := Tokens(filter)
	subjectTokens := Tokens(subject)

	for i, ft := range filterTokens {
		if ft == FullWildcardToken {
			// '>' requires at least one remaining subject token
			return i < len(subjectTokens)
		}
		if i >= len(subjectTokens) {
			return false
		}
		if ft == WildcardToken {
			continue
		}
		if ft != subjectTokens[i] {
			return false
		}
	}
	return len(filterTokens) == len(subjectTokens)
}

// StreamName resolves the stream owning a subject or filter: the first
// token. The first token must be literal so ownership is unambiguous.
func StreamName(subjectOrFilter string) (string, error) {
	if subjectOrFilter == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidSubject, "subject", "StreamName", "check empty subject")
	}

	first := Tokens(subjectOrFilter)[0]
	if first == WildcardToken || first == FullWildcardToken {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: first token must be literal to resolve a stream", errors.ErrInvalidSubject),
			"subject", "StreamName", "check first token")
	}
	if !isValidToken(first) {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: invalid token %q", errors.ErrInvalidSubject, first),
			"subject", "StreamName", "check first token")
	}
	return first, nil
}

// isValidToken checks a literal subject token. Valid characters are
// alphanumeric, dashes, and underscores.
func isValidToken(token string) bool {
	if len(token) == 0 {
		return false
	}

	for _, r := range token {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' {
			return false
		}
	}
	return true
}
