package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	nanoid "github.com/jaevor/go-nanoid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrIdentifierSpaceExhausted is returned when every candidate tried is already taken.
var ErrIdentifierSpaceExhausted = errors.New("identifier space exhausted")

const (
	maxIdentifierAttempts = 100
	upperAlphanumeric     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tokenAlphabet         = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	skuSuffix     = mustGenerator(upperAlphanumeric, 8)
	variantSuffix = mustGenerator(upperAlphanumeric, 6)
	orderSuffix   = mustGenerator(upperAlphanumeric, 10)
	authToken     = mustGenerator(tokenAlphabet, 40)
	sessionKey    = mustGenerator(tokenAlphabet, 32)
)

func mustGenerator(alphabet string, size int) func() string {
	gen, err := nanoid.CustomASCII(alphabet, size)
	if err != nil {
		panic(fmt.Sprintf("nanoid generator: %v", err))
	}
	return gen
}

// NewSKU returns a product SKU candidate such as SKU-7K2M9QXA.
func NewSKU() string { return "SKU-" + skuSuffix() }

// NewVariantSKU derives a variant SKU candidate from its parent's SKU.
func NewVariantSKU(parentSKU string) string { return parentSKU + "-VAR-" + variantSuffix() }

// NewOrderNumber returns an order number candidate such as ORD-4F7Q1ZB8C2.
func NewOrderNumber() string { return "ORD-" + orderSuffix() }

// NewAuthToken returns an opaque 40-character API token.
func NewAuthToken() string { return authToken() }

// NewSessionKey returns an anonymous cart session key.
func NewSessionKey() string { return sessionKey() }

// Slugify lowercases s, folds accents and joins words with single hyphens.
func Slugify(s string) string {
	// Chained transformers carry state, so each call builds its own.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			hyphen = false
		case r == '_' || unicode.IsSpace(r) || r == '-':
			if b.Len() > 0 && !hyphen {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// existsFunc reports whether a candidate identifier is already taken.
type existsFunc func(ctx context.Context, candidate string) (bool, error)

// UniqueSuffixed returns base if free, otherwise base-1, base-2, ... up to the attempt bound.
func UniqueSuffixed(ctx context.Context, base string, exists existsFunc) (string, error) {
	candidate := base
	for i := 0; i < maxIdentifierAttempts; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%q: %w", base, ErrIdentifierSpaceExhausted)
}

// UniqueGenerated draws fresh candidates from gen until one is free.
func UniqueGenerated(ctx context.Context, gen func() string, exists existsFunc) (string, error) {
	for i := 0; i < maxIdentifierAttempts; i++ {
		candidate := gen()
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrIdentifierSpaceExhausted
}

type existsChecker interface {
	Exists(ctx context.Context, table, column, value string) (bool, error)
}

// resolveSlug keeps an explicit slug as given (normalised) and otherwise
// derives a unique one from name.
func resolveSlug(ctx context.Context, repo existsChecker, table, explicit, name string) (string, error) {
	if slug := Slugify(explicit); slug != "" {
		return slug, nil
	}
	base := Slugify(name)
	if base == "" {
		base = "item"
	}
	return UniqueSuffixed(ctx, base, func(ctx context.Context, c string) (bool, error) {
		return repo.Exists(ctx, table, "slug", c)
	})
}
