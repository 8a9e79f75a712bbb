package bus

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

type fakeAdapter struct {
	name     string
	binaries []string
	argv     []string
	events   []string
}

func (f *fakeAdapter) Name() string                 { return f.name }
func (f *fakeAdapter) Category() types.ToolCategory { return types.CategoryOther }
func (f *fakeAdapter) RequiredBinaries() []string   { return f.binaries }
func (f *fakeAdapter) Describe() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:             f.name,
		Category:         types.CategoryOther,
		RequiredBinaries: f.binaries,
	}
}

func (f *fakeAdapter) BuildCommand(target string, options map[string]types.OptionValue) ([]string, error) {
	return f.argv, nil
}

func (f *fakeAdapter) ParseOutput(stdout, stderr []byte, formatHint string) (*types.ParsedResult, error) {
	return &types.ParsedResult{}, nil
}

// listenerAdapter also records lifecycle broadcasts.
type listenerAdapter struct {
	fakeAdapter
	panicOn string
}

func (l *listenerAdapter) OnScanStart(workflowName, target string) {
	if l.panicOn == "scan_start" {
		panic("listener exploded")
	}
	l.events = append(l.events, "scan_start:"+workflowName)
}

func (l *listenerAdapter) OnTaskStart(taskID string) {
	l.events = append(l.events, "task_start:"+taskID)
}

func (l *listenerAdapter) OnTaskComplete(taskID string, state types.TaskState) {
	l.events = append(l.events, "task_complete:"+taskID+":"+string(state))
}

func (l *listenerAdapter) OnScanComplete(result *types.ScanResult) {
	l.events = append(l.events, "scan_complete:"+result.ID)
}

func newBus() *Bus {
	return New(logger.NewNop())
}

func TestRegisterDuplicate(t *testing.T) {
	b := newBus()
	require.NoError(t, b.Register(&fakeAdapter{name: "tool"}))

	err := b.Register(&fakeAdapter{name: "tool"})
	var resErr *AdapterResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "tool", resErr.Tool)
}

func TestRegisterEmptyName(t *testing.T) {
	b := newBus()
	assert.Error(t, b.Register(&fakeAdapter{name: ""}))
}

func TestSingleResponderUnknownTool(t *testing.T) {
	b := newBus()
	require.NoError(t, b.Register(&fakeAdapter{name: "known"}))

	_, err := b.BuildCommand("ghost", "example.com", nil)
	var resErr *AdapterResolutionError
	require.ErrorAs(t, err, &resErr)

	_, err = b.ParseOutput("ghost", nil, nil, "")
	require.ErrorAs(t, err, &resErr)
}

func TestSingleResponderDispatch(t *testing.T) {
	b := newBus()
	require.NoError(t, b.Register(&fakeAdapter{name: "a", argv: []string{"/bin/a"}}))
	require.NoError(t, b.Register(&fakeAdapter{name: "b", argv: []string{"/bin/b"}}))

	argv, err := b.BuildCommand("b", "example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/b"}, argv)
}

func TestDescriptorsStableOrder(t *testing.T) {
	b := newBus()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, b.Register(&fakeAdapter{name: name}))
	}

	descriptors := b.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, "zeta", descriptors[0].Name)
	assert.Equal(t, "alpha", descriptors[1].Name)
	assert.Equal(t, "mid", descriptors[2].Name)
}

func TestBroadcastReachesAllListeners(t *testing.T) {
	b := newBus()
	l1 := &listenerAdapter{fakeAdapter: fakeAdapter{name: "l1"}}
	l2 := &listenerAdapter{fakeAdapter: fakeAdapter{name: "l2"}}
	require.NoError(t, b.Register(l1))
	require.NoError(t, b.Register(l2))

	b.OnScanStart("wf", "example.com")
	b.OnTaskComplete("t1", types.TaskSucceeded)

	for _, l := range []*listenerAdapter{l1, l2} {
		assert.Contains(t, l.events, "scan_start:wf")
		assert.Contains(t, l.events, "task_complete:t1:succeeded")
	}
}

func TestBroadcastSurvivesPanickingListener(t *testing.T) {
	b := newBus()
	bad := &listenerAdapter{fakeAdapter: fakeAdapter{name: "bad"}, panicOn: "scan_start"}
	good := &listenerAdapter{fakeAdapter: fakeAdapter{name: "good"}}
	require.NoError(t, b.Register(bad))
	require.NoError(t, b.Register(good))

	assert.NotPanics(t, func() {
		b.OnScanStart("wf", "example.com")
	})
	assert.Contains(t, good.events, "scan_start:wf")
}

func TestResolveBinaryExplicitWinsOverPath(t *testing.T) {
	b := newBus()

	// "echo" resolves on PATH; pinning it must override.
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}

	path, ok := b.ResolveBinary("echo")
	require.True(t, ok)
	assert.NotEqual(t, "/custom/echo", path)

	b.SetBinaryPath("echo", "/custom/echo")
	path, ok = b.ResolveBinary("echo")
	require.True(t, ok)
	assert.Equal(t, "/custom/echo", path)
}

func TestValidateDependencies(t *testing.T) {
	b := newBus()
	require.NoError(t, b.Register(&fakeAdapter{name: "present", binaries: []string{"echo"}}))
	require.NoError(t, b.Register(&fakeAdapter{name: "absent", binaries: []string{"definitely-not-a-binary-xyzzy"}}))

	report := b.ValidateDependencies()

	require.Len(t, report["present"], 1)
	require.Len(t, report["absent"], 1)
	assert.True(t, report["present"][0].Available)
	assert.NotEmpty(t, report["present"][0].ResolvedPath)
	assert.False(t, report["absent"][0].Available)
}
