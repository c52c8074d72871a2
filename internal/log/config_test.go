package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"text", FormatText},
		{" Console ", FormatText},
		{"", FormatJSON},
		{"xml", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFormat(tt.in))
		})
	}
	assert.Equal(t, "text", FormatText.String())
	assert.Equal(t, "json", Format(99).String())
}

func TestPresetConfigs(t *testing.T) {
	assert.Equal(t, LevelInfo, DefaultConfig().Level)
	assert.Equal(t, LevelDebug, DevelopmentConfig().Level)
	assert.True(t, DevelopmentConfig().AddSource)
	assert.Equal(t, FormatJSON, ProductionConfig().Format)
	assert.Equal(t, "tradeflow", ProductionConfig().ServiceName)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings("debug", "text", true, "1.2.3")

	assert.Equal(t, LevelDebug, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.True(t, cfg.AddSource)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)

	assert.Equal(t, "dev", FromSettings("", "", false, "").ServiceVersion)
}

func TestOutputZeroValueWritesSomewhere(t *testing.T) {
	assert.NotNil(t, Output{}.Writer())
}
