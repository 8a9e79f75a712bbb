package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSeverityOrder(t *testing.T) {
	ordered := []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank())
	}
	assert.Equal(t, -1, Severity("bogus").Rank())
}

func TestSeverityThreshold(t *testing.T) {
	assert.True(t, SeverityCritical.MeetsThreshold(SeverityHigh))
	assert.True(t, SeverityHigh.MeetsThreshold(SeverityHigh))
	assert.False(t, SeverityMedium.MeetsThreshold(SeverityHigh))
	assert.False(t, SeverityCritical.MeetsThreshold(""))
}

func TestPortValidate(t *testing.T) {
	assert.NoError(t, Port{Number: 443, Protocol: ProtocolTCP, State: PortStateOpen}.Validate())
	assert.Error(t, Port{Number: 0, Protocol: ProtocolTCP}.Validate())
	assert.Error(t, Port{Number: 70000, Protocol: ProtocolTCP}.Validate())
	assert.Error(t, Port{Number: 80, Protocol: "icmp"}.Validate())
}

func TestHostAddPortDedup(t *testing.T) {
	h := Host{Address: "10.0.0.1"}
	h.AddPort(Port{Number: 80, Protocol: ProtocolTCP, State: PortStateOpen})
	h.AddPort(Port{Number: 80, Protocol: ProtocolUDP, State: PortStateOpen})
	h.AddPort(Port{Number: 80, Protocol: ProtocolTCP, State: PortStateOpen, Service: "http"})

	require.Len(t, h.Ports, 2)
	p, ok := h.Port(PortKey{Number: 80, Protocol: ProtocolTCP})
	require.True(t, ok)
	assert.Equal(t, "http", p.Service)
}

func TestAssetMerge(t *testing.T) {
	a := Asset{
		Hosts:   []Host{{Address: "10.0.0.1", Ports: []Port{{Number: 22, Protocol: ProtocolTCP, State: PortStateOpen}}}},
		WebApps: []WebApp{{URL: "https://a.example.com"}},
	}
	b := Asset{
		Hosts: []Host{
			{Address: "10.0.0.1", Hostname: "a.example.com", Ports: []Port{{Number: 80, Protocol: ProtocolTCP, State: PortStateOpen}}},
			{Address: "10.0.0.2"},
		},
		WebApps:    []WebApp{{URL: "https://a.example.com"}, {URL: "https://b.example.com"}},
		Subdomains: []Subdomain{{Name: "a.example.com"}},
	}

	a.Merge(b)

	require.Len(t, a.Hosts, 2)
	assert.Equal(t, "a.example.com", a.Hosts[0].Hostname)
	assert.Len(t, a.Hosts[0].Ports, 2)
	assert.Len(t, a.WebApps, 2)
	assert.Len(t, a.Subdomains, 1)
}

func TestScanResultMaxSeverity(t *testing.T) {
	r := ScanResult{}
	assert.Equal(t, Severity(""), r.MaxSeverity())

	r.Vulnerabilities = []Vulnerability{
		{Severity: SeverityLow},
		{Severity: SeverityCritical},
		{Severity: SeverityMedium},
	}
	assert.Equal(t, SeverityCritical, r.MaxSeverity())
}

func TestTaskStateTerminal(t *testing.T) {
	for _, s := range []TaskState{TaskSucceeded, TaskFailed, TaskSkipped, TaskTimedOut, TaskCancelled} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []TaskState{TaskPending, TaskReady, TaskRunning} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestOptionValueYAML(t *testing.T) {
	var m map[string]OptionValue
	data := []byte("str: hello\nnum: 42\nflag: true\nlist: [a, b]\n")
	require.NoError(t, yaml.Unmarshal(data, &m))

	assert.Equal(t, OptionString, m["str"].Kind)
	assert.Equal(t, "hello", m["str"].String())
	assert.Equal(t, OptionInt, m["num"].Kind)
	assert.Equal(t, "42", m["num"].String())
	assert.Equal(t, OptionBool, m["flag"].Kind)
	assert.True(t, m["flag"].Truthy())
	assert.Equal(t, OptionStringList, m["list"].Kind)
	assert.Equal(t, "a,b", m["list"].String())
}

func TestOptionValueJSONRoundTrip(t *testing.T) {
	in := map[string]OptionValue{
		"str":  StringOption("x"),
		"num":  IntOption(7),
		"flag": BoolOption(true),
		"list": ListOption([]string{"p", "q"}),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[string]OptionValue
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestOptionValueRejectsFloat(t *testing.T) {
	var v OptionValue
	assert.Error(t, json.Unmarshal([]byte("1.5"), &v))
}
