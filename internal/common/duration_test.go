package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type durationHolder struct {
	Interval Duration `json:"interval" yaml:"interval" toml:"interval"`
}

func TestDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name     string
		decode   func(*durationHolder) error
		expected time.Duration
		wantErr  bool
	}{
		{
			name: "json",
			decode: func(h *durationHolder) error {
				return json.Unmarshal([]byte(`{"interval":"1m30s"}`), h)
			},
			expected: 90 * time.Second,
		},
		{
			name: "yaml",
			decode: func(h *durationHolder) error {
				return yaml.Unmarshal([]byte("interval: 250ms\n"), h)
			},
			expected: 250 * time.Millisecond,
		},
		{
			name: "toml",
			decode: func(h *durationHolder) error {
				_, err := toml.Decode(`interval = "2h"`, h)
				return err
			},
			expected: 2 * time.Hour,
		},
		{
			name: "missing unit",
			decode: func(h *durationHolder) error {
				return json.Unmarshal([]byte(`{"interval":"100"}`), h)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h durationHolder
			err := tt.decode(&h)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, h.Interval.Duration)
		})
	}
}

func TestDuration_MarshalRoundtrip(t *testing.T) {
	in := durationHolder{Interval: NewDuration(45 * time.Second)}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)

	var out durationHolder
	require.NoError(t, yaml.Unmarshal(data, &out))
	require.Equal(t, in.Interval, out.Interval)
}

func TestDuration_JSONSchema(t *testing.T) {
	schema := Duration{}.JSONSchema()

	require.Equal(t, "string", schema.Type)
	require.Equal(t, "Duration", schema.Title)
	require.Contains(t, schema.Examples, "300ms")
}
