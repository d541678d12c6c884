package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/internal/config"
)

func TestResolveHeadless(t *testing.T) {
	truev, falsev := true, false

	testCases := []struct {
		name     string
		override *bool
		cfg      config.BrowserConfig
		expected bool
	}{
		{
			name:     "config default true with no override",
			override: nil,
			cfg:      config.BrowserConfig{Headless: true, AllowOverride: true},
			expected: true,
		},
		{
			name:     "config default false with no override",
			override: nil,
			cfg:      config.BrowserConfig{Headless: false, AllowOverride: true},
			expected: false,
		},
		{
			name:     "override false beats config default true",
			override: &falsev,
			cfg:      config.BrowserConfig{Headless: true, AllowOverride: true},
			expected: false,
		},
		{
			name:     "override true beats config default false",
			override: &truev,
			cfg:      config.BrowserConfig{Headless: false, AllowOverride: true},
			expected: true,
		},
		{
			name:     "override ignored when overrides are disallowed",
			override: &falsev,
			cfg:      config.BrowserConfig{Headless: true, AllowOverride: false},
			expected: true,
		},
		{
			name:     "force visible beats an explicit headless override",
			override: &truev,
			cfg:      config.BrowserConfig{Headless: true, AllowOverride: true, ForceVisible: true},
			expected: false,
		},
		{
			name:     "force visible beats the config default",
			override: nil,
			cfg:      config.BrowserConfig{Headless: true, AllowOverride: true, ForceVisible: true},
			expected: false,
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveHeadless(tt.override, tt.cfg, zap.NewNop())
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseHeadlessOverride(t *testing.T) {
	truev := true

	t.Run("should pass booleans through", func(t *testing.T) {
		got := ParseHeadlessOverride(true)
		if assert.NotNil(t, got) {
			assert.True(t, *got)
		}

		got = ParseHeadlessOverride(false)
		if assert.NotNil(t, got) {
			assert.False(t, *got)
		}
	})

	t.Run("should pass bool pointers through unchanged", func(t *testing.T) {
		assert.Same(t, &truev, ParseHeadlessOverride(&truev))
		assert.Nil(t, ParseHeadlessOverride((*bool)(nil)))
	})

	t.Run("should normalize string spellings", func(t *testing.T) {
		for _, s := range []string{"true", "TRUE", " True ", "1", "yes"} {
			got := ParseHeadlessOverride(s)
			if assert.NotNil(t, got, "input %q", s) {
				assert.True(t, *got, "input %q", s)
			}
		}
		for _, s := range []string{"false", "FALSE", " false ", "0", "no"} {
			got := ParseHeadlessOverride(s)
			if assert.NotNil(t, got, "input %q", s) {
				assert.False(t, *got, "input %q", s)
			}
		}
	})

	t.Run("should treat unrecognized values as no override", func(t *testing.T) {
		assert.Nil(t, ParseHeadlessOverride("maybe"))
		assert.Nil(t, ParseHeadlessOverride(""))
		assert.Nil(t, ParseHeadlessOverride(42))
		assert.Nil(t, ParseHeadlessOverride(nil))
	})
}
