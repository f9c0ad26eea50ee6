package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		development bool
		wantErr     bool
	}{
		{name: "debug production", level: "debug"},
		{name: "info production", level: "info"},
		{name: "warn development", level: "warn", development: true},
		{name: "invalid level", level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLogger(tt.level, tt.development)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, l)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.level, l.GetLevel())
			require.Empty(t, l.GetComponent())
		})
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l, err := NewLogger("info", false)
	require.NoError(t, err)

	require.NoError(t, l.SetLevel("error"))
	require.Equal(t, "error", l.GetLevel())
	require.False(t, l.atomicLevel.Enabled(zapcore.WarnLevel))

	require.Error(t, l.SetLevel("loud"))
	require.Equal(t, "error", l.GetLevel())
}

func TestLogger_WithComponentSharesLevel(t *testing.T) {
	root, err := NewLogger("info", false)
	require.NoError(t, err)

	stream := root.WithComponent("stream")
	require.Equal(t, "stream", stream.GetComponent())

	require.NoError(t, root.SetLevel("debug"))
	require.Equal(t, "debug", stream.GetLevel())
}

func TestNewComponentLogger_PanicsOnBadLevel(t *testing.T) {
	require.Panics(t, func() {
		_ = NewComponentLogger("backfill", "nope", false)
	})

	l := NewComponentLogger("backfill", "warn", true)
	require.Equal(t, "backfill", l.GetComponent())
	require.Equal(t, "warn", l.GetLevel())
}

type stubLoggingConfig struct {
	defaultLevel string
	levels       map[string]string
}

func (s stubLoggingConfig) GetComponentLevel(component string) string {
	if lvl, ok := s.levels[component]; ok {
		return lvl
	}
	return s.defaultLevel
}

func (s stubLoggingConfig) GetDefaultLevel() string { return s.defaultLevel }

func (s stubLoggingConfig) IsDevelopment() bool { return false }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		component string
		cfg       LoggingConfig
		expected  string
	}{
		{
			name:      "component override",
			component: "reconcile",
			cfg:       stubLoggingConfig{defaultLevel: "info", levels: map[string]string{"reconcile": "debug"}},
			expected:  "debug",
		},
		{
			name:      "default level",
			component: "stream",
			cfg:       stubLoggingConfig{defaultLevel: "warn"},
			expected:  "warn",
		},
		{
			name:      "nil config",
			component: "api",
			cfg:       nil,
			expected:  "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewComponentLoggerFromConfig(tt.component, tt.cfg)
			require.Equal(t, tt.component, l.GetComponent())
			require.Equal(t, tt.expected, l.GetLevel())
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	l := NewNopLogger()
	require.NotNil(t, l.SugaredLogger)

	l.Debug("discarded")
	l.Errorf("discarded %d", 1)
}
