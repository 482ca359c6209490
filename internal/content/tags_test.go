package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Deployment", "deployment"},
		{"  API Reference  ", "api-reference"},
		{"getting_started!", "gettingstarted"},
		{"C++ tips", "c-tips"},
		{"--already-kebab--", "already-kebab"},
		{"ümlaut", "mlaut"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTag(tt.in))
		})
	}
}

func TestNormalizeTagLength(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := NormalizeTag(long)
	assert.Len(t, got, maxTagLength)
}

func TestValidateTag(t *testing.T) {
	tag, err := ValidateTag("  Kubernetes  ")
	require.NoError(t, err)
	assert.Equal(t, "kubernetes", tag)

	_, err = ValidateTag("???")
	assert.Error(t, err)
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"Deploy", "deploy", "  ", "API Docs", "api-docs"})
	assert.Equal(t, []string{"deploy", "api-docs"}, got)
}
