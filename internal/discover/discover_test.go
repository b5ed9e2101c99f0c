package discover

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFiles_AttachesTags_When_ConstraintRequiresThem(t *testing.T) {
	t.Parallel()

	funcs, err := ScanFiles("testdata/orders",
		[]string{"orders_test.go", "repository_test.go", "short_test.go"},
		[]string{"integration"})
	require.NoError(t, err)

	idx := TagIndex(funcs)
	assert.Equal(t, []string{"integration"}, idx["TestRepositorySave"])
	assert.Equal(t, []string{"integration"}, idx["FuzzDecode"])
	assert.NotContains(t, idx, "TestCreate")
	assert.NotContains(t, idx, "TestShortOnly", "negated tag is not attached")

	var names []string
	for _, fn := range funcs {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"TestCreate", "ExampleOrder", "TestRepositorySave", "FuzzDecode", "TestShortOnly"}, names)
}

func TestScanFiles_IgnoresTag_When_NotConfigured(t *testing.T) {
	t.Parallel()

	funcs, err := ScanFiles("testdata/orders", []string{"repository_test.go"}, []string{"e2e"})
	require.NoError(t, err)
	assert.Empty(t, TagIndex(funcs))
}

func TestScanFiles_ReturnsError_When_FileMissing(t *testing.T) {
	t.Parallel()

	_, err := ScanFiles("testdata/orders", []string{"nope_test.go"}, nil)
	require.Error(t, err)
}

func TestDecodePackages_ReadsStream_When_SeveralObjects(t *testing.T) {
	t.Parallel()

	input := `{"ImportPath":"example.com/store/orders","Dir":"/src/orders","TestGoFiles":["orders_test.go"],"XTestGoFiles":["export_test.go"]}
{"ImportPath":"example.com/store/broken","Dir":"/src/broken","Error":{"Err":"no Go files"}}`

	pkgs, err := DecodePackages(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, []string{"orders_test.go", "export_test.go"}, pkgs[0].TestFiles())
	require.NotNil(t, pkgs[1].Error)
	assert.Equal(t, "no Go files", pkgs[1].Error.Err)
}
