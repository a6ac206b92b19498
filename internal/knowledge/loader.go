package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"portfolio-chat/internal/integrations/paramstore"
)

// ParamGetter reads a single parameter value.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Loader resolves the knowledge base from, in order: a local file, an SSM
// parameter, or the embedded default. A missing parameter is not an error.
type Loader struct {
	file      string
	params    ParamGetter
	paramName string
}

type LoaderOption func(*Loader)

func WithFile(path string) LoaderOption {
	return func(l *Loader) {
		l.file = strings.TrimSpace(path)
	}
}

func WithParameter(p ParamGetter, name string) LoaderOption {
	return func(l *Loader) {
		l.params = p
		l.paramName = strings.TrimSpace(name)
	}
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the knowledge base for this process.
func (l *Loader) Load(ctx context.Context) (*Base, error) {
	if l.file != "" {
		data, err := os.ReadFile(l.file)
		if err != nil {
			return nil, fmt.Errorf("knowledge: read %s: %w", l.file, err)
		}
		return Parse(data)
	}
	if l.params != nil && l.paramName != "" {
		raw, err := l.params.GetParameter(ctx, l.paramName)
		switch {
		case errors.Is(err, paramstore.ErrParameterNotFound):
			return Default(), nil
		case err != nil:
			return nil, fmt.Errorf("knowledge: load parameter: %w", err)
		}
		return Parse([]byte(raw))
	}
	return Default(), nil
}
