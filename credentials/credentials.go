// Package credentials materializes warehouse service-account secrets for the
// duration of a run.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// DefaultEnvVar is read by the Google client libraries.
const DefaultEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

// DefaultKey names the secret holding the warehouse credentials JSON.
const DefaultKey = "HARVEST_CREDENTIALS"

// ErrEmptySecret is returned when a provider has nothing to hand out.
var ErrEmptySecret = errors.New("credentials secret is empty")

// Provider returns the raw credentials blob.
type Provider interface {
	Secret(ctx context.Context) (string, error)
}

// EnvProvider reads Key from the process environment, falling back to the
// given .env files. Missing files are skipped.
type EnvProvider struct {
	Key   string
	Files []string
}

func (p EnvProvider) Secret(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := p.Key
	if key == "" {
		key = DefaultKey
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, nil
	}
	for _, f := range p.Files {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f, err)
		}
		if v := strings.TrimSpace(values[key]); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s: %w", key, ErrEmptySecret)
}

// FileProvider reads the blob from a local file, typically a downloaded
// service-account key.
type FileProvider struct {
	Path string
}

func (p FileProvider) Secret(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(p.Path)
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", fmt.Errorf("%s: %w", p.Path, ErrEmptySecret)
	}
	return v, nil
}

// Lease is a credentials file exposed through an environment variable.
// Close removes the file and restores the variable.
type Lease struct {
	path     string
	envVar   string
	previous string
	hadPrev  bool
	once     sync.Once
	err      error
}

// Acquire writes the provider's secret to a private temp file and points envVar
// at it. An empty envVar means DefaultEnvVar.
func Acquire(ctx context.Context, p Provider, envVar string) (*Lease, error) {
	if envVar == "" {
		envVar = DefaultEnvVar
	}
	secret, err := p.Secret(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}

	f, err := os.CreateTemp("", "credentials-*.json")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if _, err := f.WriteString(secret); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	l := &Lease{path: path, envVar: envVar}
	l.previous, l.hadPrev = os.LookupEnv(envVar)
	if err := os.Setenv(envVar, path); err != nil {
		os.Remove(path)
		return nil, err
	}
	return l, nil
}

// Path is the location of the credentials file.
func (l *Lease) Path() string { return l.path }

// Close is safe to call more than once.
func (l *Lease) Close() error {
	l.once.Do(func() {
		var err error
		if l.hadPrev {
			err = os.Setenv(l.envVar, l.previous)
		} else {
			err = os.Unsetenv(l.envVar)
		}
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
			err = rmErr
		}
		l.err = err
	})
	return l.err
}
