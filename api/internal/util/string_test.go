package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "приве…", Truncate("привет мир", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestMaskSecret(t *testing.T) {
	assert.Empty(t, MaskSecret("  "))
	assert.Equal(t, "••••", MaskSecret("abc"))
	assert.Equal(t, "••••wxyz", MaskSecret("AIzaSy-stuvwxyz"))
}
