package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"*", "http://localhost:5173", "https://audit.doulia.com", "app.doulia.com"})
	assert.Equal(t, []string{"*", "localhost:5173", "audit.doulia.com", "app.doulia.com"}, got)
}

func TestParseOriginRejectsHostless(t *testing.T) {
	_, err := parseOrigin("http://")
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	out, err := renderMarkdown("# Synthèse\n\n- dossiers papier\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Synthèse")
	assert.Contains(t, out, "dossiers papier")
}

func TestReportFailure(t *testing.T) {
	cause := errors.New("quota exceeded")
	var stderr bytes.Buffer

	err := reportFailure(&stderr, cause)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "report generation failed: quota exceeded", err.Error())
	assert.Equal(t, reportFailureNotice+"\n", stderr.String())
}
