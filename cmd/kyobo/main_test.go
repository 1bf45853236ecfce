package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(nil, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "-search")
}

func TestRun_BadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run([]string{"-no-such-flag"}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"-search", "데미안", "-log-level", "loud"}, &stdout, &stderr))
	assert.Empty(t, stdout.String())
}

func TestRun_ValidationError(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-search", "a", "-log-level", "error"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.NotEmpty(t, stderr.String())
}
