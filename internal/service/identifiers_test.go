package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Wireless Headphones", "wireless-headphones"},
		{"  Rock & Roll  ", "rock-roll"},
		{"Café Crème", "cafe-creme"},
		{"already-slugged", "already-slugged"},
		{"T-Shirt (Large)", "t-shirt-large"},
		{"snake_case_name", "snake-case-name"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func takenSet(values ...string) existsFunc {
	taken := map[string]bool{}
	for _, v := range values {
		taken[v] = true
	}
	return func(ctx context.Context, c string) (bool, error) { return taken[c], nil }
}

func TestUniqueSuffixed(t *testing.T) {
	ctx := context.Background()

	got, err := UniqueSuffixed(ctx, "mug", takenSet())
	require.NoError(t, err)
	assert.Equal(t, "mug", got)

	got, err = UniqueSuffixed(ctx, "mug", takenSet("mug", "mug-1"))
	require.NoError(t, err)
	assert.Equal(t, "mug-2", got)
}

func TestUniqueSuffixedExhausted(t *testing.T) {
	always := func(ctx context.Context, c string) (bool, error) { return true, nil }
	_, err := UniqueSuffixed(context.Background(), "mug", always)
	assert.ErrorIs(t, err, ErrIdentifierSpaceExhausted)
}

func TestUniqueSuffixedPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	failing := func(ctx context.Context, c string) (bool, error) { return false, boom }
	_, err := UniqueSuffixed(context.Background(), "mug", failing)
	assert.ErrorIs(t, err, boom)
}

func TestUniqueGeneratedRetriesOnCollision(t *testing.T) {
	candidates := []string{"A", "B", "C"}
	i := 0
	gen := func() string { c := candidates[i]; i++; return c }

	got, err := UniqueGenerated(context.Background(), gen, takenSet("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, "C", got)
}

func TestGeneratedFormats(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^SKU-[0-9A-Z]{8}$`), NewSKU())
	assert.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-Z]{10}$`), NewOrderNumber())
	assert.Regexp(t, regexp.MustCompile(`^SKU-ABC-VAR-[0-9A-Z]{6}$`), NewVariantSKU("SKU-ABC"))
	assert.Len(t, NewAuthToken(), 40)
	assert.NotEqual(t, NewSessionKey(), NewSessionKey())
}
