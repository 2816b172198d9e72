package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello", SanitizeInput("  hello  "))
	assert.Equal(t, "&lt;b&gt;bold&lt;/b&gt;", SanitizeInput("<b>bold</b>"))
	assert.Equal(t, "O&#39;Brien", SanitizeInput("O'Brien"))
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious("<img src=x>"))
	assert.True(t, ContainsSuspicious("SCRIPT tag"))
	assert.True(t, ContainsSuspicious("${injection}"))
	assert.True(t, ContainsSuspicious("x onerror=alert(1)"))

	assert.False(t, ContainsSuspicious("plain username"))
	assert.False(t, ContainsSuspicious("user.name-42"))
}
