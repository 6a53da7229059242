package core

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// FingerprintSource collects the device characteristics a fingerprint is
// derived from.
type FingerprintSource interface {
	Components(ctx context.Context) (map[string]string, error)
}

// FingerprintSourceFunc adapts a function to FingerprintSource
type FingerprintSourceFunc func(ctx context.Context) (map[string]string, error)

func (f FingerprintSourceFunc) Components(ctx context.Context) (map[string]string, error) {
	return f(ctx)
}

// HostSource derives components from the machine the process runs on
type HostSource struct{}

func (HostSource) Components(ctx context.Context) (map[string]string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}

	zone, _ := time.Now().Zone()

	return map[string]string{
		"hostname": hostname,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"cpus":     strconv.Itoa(runtime.NumCPU()),
		"timezone": zone,
		"language": os.Getenv("LANG"),
	}, nil
}

// Fingerprinter computes a best-effort device fingerprint once and caches
// it for its lifetime. It never fails: when the source cannot produce a
// fingerprint, a random fallback is cached instead.
type Fingerprinter struct {
	source FingerprintSource

	mu     sync.Mutex
	cached string
}

// NewFingerprinter creates a fingerprinter. A nil source uses HostSource.
func NewFingerprinter(source FingerprintSource) *Fingerprinter {
	if source == nil {
		source = HostSource{}
	}
	return &Fingerprinter{source: source}
}

// Fingerprint returns the cached fingerprint, computing it on first use
func (f *Fingerprinter) Fingerprint(ctx context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != "" {
		return f.cached
	}

	components, err := f.source.Components(ctx)
	if err == nil && len(components) == 0 {
		err = errors.New("no fingerprint components")
	}

	if err != nil {
		slog.Error("Failed to generate device fingerprint", "error", err)
		f.cached = fallbackFingerprint()
		return f.cached
	}

	f.cached = digestComponents(components)
	return f.cached
}

// Clear drops the cached fingerprint
func (f *Fingerprinter) Clear() {
	f.mu.Lock()
	f.cached = ""
	f.mu.Unlock()
}

// digestComponents hashes components in key order so the result does not
// depend on map iteration.
func digestComponents(components map[string]string) string {
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(components[k])
		b.WriteByte('\n')
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

func fallbackFingerprint() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "fallback-" + id[:13]
}
