package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GradScrape/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(context.Context, Request) ([]domain.RawEntry, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(namedScanner("gradcafe"))
	reg.Register(namedScanner("file"))

	got, err := reg.Resolve("gradcafe")
	require.NoError(t, err)
	assert.Equal(t, "gradcafe", got.Name())
	assert.Equal(t, []string{"file", "gradcafe"}, reg.Names())

	_, err = reg.Resolve("rss")
	assert.EqualError(t, err, "scanner rss is not registered")

	var zero Registry
	zero.Register(namedScanner("file"))
	assert.Equal(t, []string{"file"}, zero.Names())
}

func TestRequestOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"path": "dump.json", "empty": ""}}
	assert.Equal(t, "dump.json", req.Option("path", "x"))
	assert.Equal(t, "x", req.Option("empty", "x"))
	assert.Equal(t, "x", Request{}.Option("path", "x"))
}
