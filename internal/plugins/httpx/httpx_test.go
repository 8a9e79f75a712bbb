package httpx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

type fakeResolver map[string]string

func (f fakeResolver) ResolveBinary(binary string) (string, bool) {
	path, ok := f[binary]
	return path, ok
}

func newTestAdapter() *Adapter {
	return New(fakeResolver{"httpx": "/usr/bin/httpx"})
}

func TestBuildCommand(t *testing.T) {
	argv, err := newTestAdapter().BuildCommand("example.com", map[string]types.OptionValue{
		"threads":          types.IntOption(20),
		"follow_redirects": types.BoolOption(true),
	})
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/httpx", argv[0])
	assert.Contains(t, argv, "-threads")
	assert.Contains(t, argv, "20")
	assert.Contains(t, argv, "-follow-redirects")
	assert.Contains(t, argv, "-json")
}

func TestBuildCommandRejectsBadOption(t *testing.T) {
	_, err := newTestAdapter().BuildCommand("example.com", map[string]types.OptionValue{
		"threads": types.StringOption("20; true"),
	})
	require.Error(t, err)

	_, err = newTestAdapter().BuildCommand("example.com", map[string]types.OptionValue{
		"proxy": types.StringOption("http://evil"),
	})
	require.Error(t, err)
}

func TestParseOutput(t *testing.T) {
	jsonl := `{"url":"https://example.com","title":"Example","status_code":200,"webserver":"nginx","tech":["Nginx","PHP"]}
{"url":"https://api.example.com","status_code":404}

`
	result, err := newTestAdapter().ParseOutput([]byte(jsonl), nil, "json")
	require.NoError(t, err)

	require.Len(t, result.Assets.WebApps, 2)
	app := result.Assets.WebApps[0]
	assert.Equal(t, "https://example.com", app.URL)
	assert.Equal(t, "Example", app.Title)
	assert.Equal(t, 200, app.StatusCode)
	assert.Equal(t, "nginx", app.Server)
	assert.Equal(t, []string{"Nginx", "PHP"}, app.Technologies)
}

func TestParseOutputBadLine(t *testing.T) {
	_, err := newTestAdapter().ParseOutput([]byte("{\"url\":\"x\"}\nnot-json\n"), nil, "json")
	require.Error(t, err)
}
