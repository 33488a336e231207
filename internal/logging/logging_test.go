package logging

import (
	"bytes"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Lvl
	}{
		{"debug", log.DEBUG},
		{"INFO", log.INFO},
		{" warn ", log.WARN},
		{"warning", log.WARN},
		{"error", log.ERROR},
		{"off", log.OFF},
		{"bogus", log.INFO},
		{"", log.INFO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestLoggerRespectsLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("warn")
	defer func() {
		SetLevel("info")
	}()

	l := New("Test")
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "[Test]")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", ShortID("1234567890"))
	assert.Equal(t, "abc", ShortID("abc"))
}
