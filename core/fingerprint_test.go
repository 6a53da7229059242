package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFingerprinter(t *testing.T) {
	t.Run("memoized_for_lifetime", func(t *testing.T) {
		var calls atomic.Int32
		fp := NewFingerprinter(FingerprintSourceFunc(func(ctx context.Context) (map[string]string, error) {
			calls.Add(1)
			return map[string]string{"os": "linux", "arch": "amd64"}, nil
		}))

		first := fp.Fingerprint(context.Background())
		second := fp.Fingerprint(context.Background())

		if first != second {
			t.Errorf("Expected cached fingerprint, got %q and %q", first, second)
		}
		if calls.Load() != 1 {
			t.Errorf("Expected source to be read once, got %d", calls.Load())
		}
		if len(first) != 32 {
			t.Errorf("Expected 32 hex characters, got %q", first)
		}
	})

	t.Run("clear_recomputes", func(t *testing.T) {
		var calls atomic.Int32
		fp := NewFingerprinter(FingerprintSourceFunc(func(ctx context.Context) (map[string]string, error) {
			calls.Add(1)
			return map[string]string{"os": "linux"}, nil
		}))

		fp.Fingerprint(context.Background())
		fp.Clear()
		fp.Fingerprint(context.Background())

		if calls.Load() != 2 {
			t.Errorf("Expected source to be read again after Clear, got %d", calls.Load())
		}
	})

	t.Run("same_components_same_fingerprint", func(t *testing.T) {
		components := map[string]string{"os": "linux", "arch": "arm64", "timezone": "UTC", "language": "en_US"}
		source := FingerprintSourceFunc(func(ctx context.Context) (map[string]string, error) {
			return components, nil
		})

		a := NewFingerprinter(source).Fingerprint(context.Background())
		b := NewFingerprinter(source).Fingerprint(context.Background())
		if a != b {
			t.Errorf("Expected stable fingerprint, got %q and %q", a, b)
		}

		other := NewFingerprinter(FingerprintSourceFunc(func(ctx context.Context) (map[string]string, error) {
			return map[string]string{"os": "darwin"}, nil
		})).Fingerprint(context.Background())
		if other == a {
			t.Error("Expected different components to give a different fingerprint")
		}
	})

	t.Run("failures_fall_back", func(t *testing.T) {
		tests := []struct {
			name   string
			source FingerprintSourceFunc
		}{
			{
				name: "source_error",
				source: func(ctx context.Context) (map[string]string, error) {
					return nil, errors.New("no hostname")
				},
			},
			{
				name: "no_components",
				source: func(ctx context.Context) (map[string]string, error) {
					return map[string]string{}, nil
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				fp := NewFingerprinter(tt.source)
				got := fp.Fingerprint(context.Background())

				if !strings.HasPrefix(got, "fallback-") || len(got) != len("fallback-")+13 {
					t.Errorf("Expected fallback fingerprint, got %q", got)
				}
				if again := fp.Fingerprint(context.Background()); again != got {
					t.Errorf("Expected fallback to be cached, got %q then %q", got, again)
				}
			})
		}
	})

	t.Run("host_source", func(t *testing.T) {
		got := NewFingerprinter(nil).Fingerprint(context.Background())
		if got == "" {
			t.Error("Expected a fingerprint from the host")
		}
	})
}
