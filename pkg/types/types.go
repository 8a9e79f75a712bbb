package types

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the position of s in the severity total order.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// MeetsThreshold reports whether s is at least as severe as min.
// An empty threshold matches nothing.
func (s Severity) MeetsThreshold(min Severity) bool {
	if min == "" {
		return false
	}
	return s.Rank() >= min.Rank()
}

type ToolCategory string

const (
	CategoryRecon   ToolCategory = "recon"
	CategoryScanner ToolCategory = "scanner"
	CategoryFuzzer  ToolCategory = "fuzzer"
	CategoryExploit ToolCategory = "exploit"
	CategoryOther   ToolCategory = "other"
)

// ToolDescriptor is the identity an adapter reports when it registers.
type ToolDescriptor struct {
	Name             string       `json:"name"`
	Category         ToolCategory `json:"category"`
	Description      string       `json:"description,omitempty"`
	RequiredBinaries []string     `json:"required_binaries"`
}

type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

type PortState string

const (
	PortStateOpen     PortState = "open"
	PortStateClosed   PortState = "closed"
	PortStateFiltered PortState = "filtered"
)

type Port struct {
	Number   int       `json:"number"`
	Protocol Protocol  `json:"protocol"`
	State    PortState `json:"state"`
	Service  string    `json:"service,omitempty"`
	Product  string    `json:"product,omitempty"`
	Version  string    `json:"version,omitempty"`
	Banner   string    `json:"banner,omitempty"`
}

func (p Port) Validate() error {
	if p.Number < 1 || p.Number > 65535 {
		return fmt.Errorf("port number %d out of range", p.Number)
	}
	if p.Protocol != ProtocolTCP && p.Protocol != ProtocolUDP {
		return fmt.Errorf("unknown protocol %q", p.Protocol)
	}
	return nil
}

// PortKey identifies a port within a host. Hosts hold at most one Port per key.
type PortKey struct {
	Number   int
	Protocol Protocol
}

func (p Port) Key() PortKey {
	return PortKey{Number: p.Number, Protocol: p.Protocol}
}

type Host struct {
	Address    string `json:"address"`
	Hostname   string `json:"hostname,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	OS         string `json:"os,omitempty"`
	OSAccuracy int    `json:"os_accuracy,omitempty"`
	Ports      []Port `json:"ports,omitempty"`
}

// AddPort inserts p, replacing any existing entry with the same
// (number, protocol) key.
func (h *Host) AddPort(p Port) {
	for i := range h.Ports {
		if h.Ports[i].Key() == p.Key() {
			h.Ports[i] = p
			return
		}
	}
	h.Ports = append(h.Ports, p)
}

func (h *Host) Port(key PortKey) (Port, bool) {
	for _, p := range h.Ports {
		if p.Key() == key {
			return p, true
		}
	}
	return Port{}, false
}

type WebApp struct {
	URL          string   `json:"url"`
	Title        string   `json:"title,omitempty"`
	StatusCode   int      `json:"status_code,omitempty"`
	Server       string   `json:"server,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

type Subdomain struct {
	Name      string   `json:"name"`
	Addresses []string `json:"addresses,omitempty"`
	CNAME     string   `json:"cname,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// Asset bundles everything a single task discovered.
type Asset struct {
	Hosts      []Host      `json:"hosts,omitempty"`
	WebApps    []WebApp    `json:"web_apps,omitempty"`
	Subdomains []Subdomain `json:"subdomains,omitempty"`
}

// Merge folds other into a. Hosts are merged by address with port dedup;
// web apps and subdomains are merged by URL / name.
func (a *Asset) Merge(other Asset) {
	for _, h := range other.Hosts {
		a.mergeHost(h)
	}
	for _, w := range other.WebApps {
		if !a.hasWebApp(w.URL) {
			a.WebApps = append(a.WebApps, w)
		}
	}
	for _, s := range other.Subdomains {
		if !a.hasSubdomain(s.Name) {
			a.Subdomains = append(a.Subdomains, s)
		}
	}
}

func (a *Asset) mergeHost(h Host) {
	for i := range a.Hosts {
		if a.Hosts[i].Address == h.Address {
			if a.Hosts[i].Hostname == "" {
				a.Hosts[i].Hostname = h.Hostname
			}
			if a.Hosts[i].OS == "" {
				a.Hosts[i].OS = h.OS
				a.Hosts[i].OSAccuracy = h.OSAccuracy
			}
			for _, p := range h.Ports {
				a.Hosts[i].AddPort(p)
			}
			return
		}
	}
	a.Hosts = append(a.Hosts, h)
}

func (a *Asset) hasWebApp(url string) bool {
	for _, w := range a.WebApps {
		if w.URL == url {
			return true
		}
	}
	return false
}

func (a *Asset) hasSubdomain(name string) bool {
	for _, s := range a.Subdomains {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (a Asset) Empty() bool {
	return len(a.Hosts) == 0 && len(a.WebApps) == 0 && len(a.Subdomains) == 0
}

type CVSS struct {
	Vector    string  `json:"vector"`
	BaseScore float64 `json:"base_score"`
	Version   string  `json:"version"`
}

type Vulnerability struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description,omitempty" db:"description"`
	Severity     Severity  `json:"severity" db:"severity"`
	CVSS         *CVSS     `json:"cvss,omitempty"`
	CVEs         []string  `json:"cves,omitempty"`
	Category     string    `json:"category,omitempty" db:"category"`
	Affected     string    `json:"affected" db:"affected"`
	Evidence     string    `json:"evidence,omitempty" db:"evidence"`
	Tool         string    `json:"tool" db:"tool"`
	DiscoveredAt time.Time `json:"discovered_at" db:"discovered_at"`
}

// ParsedResult is what an adapter extracts from one tool invocation.
type ParsedResult struct {
	Assets          Asset           `json:"assets"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities,omitempty"`
}

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskReady     TaskState = "ready"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskSkipped   TaskState = "skipped"
	TaskTimedOut  TaskState = "timed_out"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether a task in state s will never transition again.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskSkipped, TaskTimedOut, TaskCancelled:
		return true
	}
	return false
}

type TaskSpec struct {
	ID        string                 `json:"id" yaml:"id"`
	Tool      string                 `json:"tool" yaml:"tool"`
	DependsOn []string               `json:"depends_on,omitempty" yaml:"depends_on"`
	Target    string                 `json:"target,omitempty" yaml:"target"`
	Options   map[string]OptionValue `json:"options,omitempty" yaml:"options"`
	Timeout   time.Duration          `json:"timeout,omitempty" yaml:"-"`
}

type WorkflowSpec struct {
	Name          string        `json:"name" yaml:"name"`
	Description   string        `json:"description,omitempty" yaml:"description"`
	GlobalTimeout time.Duration `json:"global_timeout" yaml:"-"`
	Tasks         []TaskSpec    `json:"tasks" yaml:"tasks"`
}

// Task returns the spec with the given id, if any.
func (w *WorkflowSpec) Task(id string) (*TaskSpec, bool) {
	for i := range w.Tasks {
		if w.Tasks[i].ID == id {
			return &w.Tasks[i], true
		}
	}
	return nil, false
}

type TaskResult struct {
	TaskID      string        `json:"task_id"`
	Tool        string        `json:"tool"`
	State       TaskState     `json:"state"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	ExitCode    int           `json:"exit_code"`
	Error       string        `json:"error,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
}

type RunStatus string

const (
	RunSucceeded      RunStatus = "succeeded"
	RunPartialFailure RunStatus = "partial_failure"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
)

type ScanResult struct {
	ID              string          `json:"id" db:"id"`
	WorkflowName    string          `json:"workflow_name" db:"workflow_name"`
	Target          string          `json:"target" db:"target"`
	Status          RunStatus       `json:"status" db:"status"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	CompletedAt     time.Time       `json:"completed_at" db:"completed_at"`
	Tasks           []TaskResult    `json:"tasks"`
	Assets          Asset           `json:"assets"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// TaskResult returns the recorded result for a task id, if present.
func (r *ScanResult) TaskResult(id string) (*TaskResult, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].TaskID == id {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// MaxSeverity returns the highest vulnerability severity in the result,
// or empty when there are no vulnerabilities.
func (r *ScanResult) MaxSeverity() Severity {
	var max Severity
	for _, v := range r.Vulnerabilities {
		if max == "" || v.Severity.Rank() > max.Rank() {
			max = v.Severity
		}
	}
	return max
}
