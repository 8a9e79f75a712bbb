// Package nmap adapts the Network Mapper port scanner: it builds nmap
// command lines from task options and normalizes the XML report into
// hosts, ports, and service-risk vulnerabilities.
package nmap

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/validation"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

var profiles = map[string]string{
	"default":  "-sS -sV",
	"fast":     "-T4 -F",
	"thorough": "-sS -sV -sC -O",
}

type Adapter struct {
	resolver core.BinaryResolver
}

func New(resolver core.BinaryResolver) *Adapter {
	return &Adapter{resolver: resolver}
}

func (a *Adapter) Name() string { return "nmap" }

func (a *Adapter) Category() types.ToolCategory { return types.CategoryRecon }

func (a *Adapter) RequiredBinaries() []string { return []string{"nmap"} }

func (a *Adapter) Describe() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:             "nmap",
		Category:         types.CategoryRecon,
		Description:      "Network port scanner with service and OS detection",
		RequiredBinaries: []string{"nmap"},
	}
}

// BuildCommand accepts the options "profile" (named argument profile),
// "ports" (nmap port spec), and "os_detection" (bool). Anything else is
// rejected.
func (a *Adapter) BuildCommand(target string, options map[string]types.OptionValue) ([]string, error) {
	binary, ok := a.resolver.ResolveBinary("nmap")
	if !ok {
		return nil, fmt.Errorf("nmap binary not available")
	}
	if _, err := validation.ValidateTarget(target); err != nil {
		return nil, err
	}

	args := []string{binary, "-oX", "-"}

	profile := "default"
	for key, value := range options {
		switch key {
		case "profile":
			if err := validation.CheckOption(key, value.String(), validation.Identifier); err != nil {
				return nil, err
			}
			if _, known := profiles[value.String()]; !known {
				return nil, &validation.InvalidInputError{
					Field:  "option profile",
					Value:  value.String(),
					Reason: "unknown profile",
				}
			}
			profile = value.String()
		case "ports":
			if err := validation.CheckOption(key, value.String(), validation.PortSpec); err != nil {
				return nil, err
			}
			args = append(args, "-p", value.String())
		case "os_detection":
			if value.Truthy() {
				args = append(args, "-O")
			}
		default:
			return nil, &validation.InvalidInputError{
				Field:  "option " + key,
				Value:  value.String(),
				Reason: "not in the nmap option allowlist",
			}
		}
	}

	args = append(args, strings.Fields(profiles[profile])...)
	args = append(args, target)
	return args, nil
}

func (a *Adapter) ParseOutput(stdout, stderr []byte, formatHint string) (*types.ParsedResult, error) {
	if len(stdout) == 0 {
		return nil, &core.DataParsingError{Tool: "nmap", Reason: "empty output"}
	}

	var report nmapRun
	if err := xml.Unmarshal(stdout, &report); err != nil {
		return nil, &core.DataParsingError{Tool: "nmap", Reason: "invalid XML", Err: err}
	}

	result := &types.ParsedResult{}
	now := time.Unix(0, 0)
	if report.Start != "" {
		if sec, err := strconv.ParseInt(report.Start, 10, 64); err == nil {
			now = time.Unix(sec, 0).UTC()
		}
	}

	for _, h := range report.Hosts {
		if h.Status.State != "up" {
			continue
		}

		host := types.Host{Address: hostAddress(h)}
		for _, addr := range h.Addresses {
			if addr.AddrType == "mac" {
				host.MACAddress = addr.Addr
			}
		}
		if len(h.Hostnames.Hostnames) > 0 {
			host.Hostname = h.Hostnames.Hostnames[0].Name
		}
		if len(h.OS.OSMatches) > 0 {
			host.OS = h.OS.OSMatches[0].Name
			if acc, err := strconv.Atoi(h.OS.OSMatches[0].Accuracy); err == nil {
				host.OSAccuracy = acc
			}
		}

		for _, p := range h.Ports.Ports {
			if p.State.State != "open" {
				continue
			}
			number, err := strconv.Atoi(p.PortID)
			if err != nil {
				return nil, &core.DataParsingError{
					Tool:   "nmap",
					Reason: fmt.Sprintf("bad port id %q", p.PortID),
				}
			}
			port := types.Port{
				Number:   number,
				Protocol: types.Protocol(p.Protocol),
				State:    types.PortStateOpen,
				Service:  p.Service.Name,
				Product:  p.Service.Product,
				Version:  p.Service.Version,
				Banner:   strings.TrimSpace(p.Service.Product + " " + p.Service.Version),
			}
			host.AddPort(port)

			if isHighRiskService(p.Service.Name, p.PortID) {
				result.Vulnerabilities = append(result.Vulnerabilities, types.Vulnerability{
					ID:       fmt.Sprintf("nmap:%s:%s/%s", host.Address, p.PortID, p.Protocol),
					Name:     fmt.Sprintf("High-risk service %s exposed", p.Service.Name),
					Description: fmt.Sprintf(
						"Port %s/%s on %s runs %s %s, a service commonly targeted for initial access.",
						p.PortID, p.Protocol, host.Address, p.Service.Name, p.Service.Version,
					),
					Severity:     serviceSeverity(p.Service.Name, p.PortID),
					Category:     "exposed-service",
					Affected:     host.Address,
					Evidence:     portEvidence(p),
					Tool:         "nmap",
					DiscoveredAt: now,
				})
			}
		}

		sort.Slice(host.Ports, func(i, j int) bool {
			return host.Ports[i].Number < host.Ports[j].Number
		})
		result.Assets.Hosts = append(result.Assets.Hosts, host)
	}

	return result, nil
}

func hostAddress(h nmapHost) string {
	for _, addr := range h.Addresses {
		if addr.AddrType == "ipv4" {
			return addr.Addr
		}
	}
	for _, addr := range h.Addresses {
		if addr.AddrType == "ipv6" {
			return addr.Addr
		}
	}
	return "unknown"
}

var highRiskServices = []string{"telnet", "ftp", "vnc", "rdp", "smb", "netbios"}
var highRiskPorts = map[string]bool{"21": true, "23": true, "139": true, "445": true, "3389": true, "5900": true}

func isHighRiskService(service, port string) bool {
	service = strings.ToLower(service)
	for _, risk := range highRiskServices {
		if strings.Contains(service, risk) {
			return true
		}
	}
	return highRiskPorts[port]
}

func serviceSeverity(service, port string) types.Severity {
	if isHighRiskService(service, port) {
		return types.SeverityHigh
	}
	return types.SeverityLow
}

func portEvidence(p nmapPort) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Port: %s/%s\n", p.PortID, p.Protocol)
	fmt.Fprintf(&b, "State: %s\n", p.State.State)
	if p.Service.Name != "" {
		fmt.Fprintf(&b, "Service: %s\n", p.Service.Name)
	}
	if p.Service.Product != "" {
		fmt.Fprintf(&b, "Product: %s\n", p.Service.Product)
	}
	if p.Service.Version != "" {
		fmt.Fprintf(&b, "Version: %s\n", p.Service.Version)
	}
	return b.String()
}

type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Start   string     `xml:"start,attr"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status    nmapStatus    `xml:"status"`
	Addresses []nmapAddress `xml:"address"`
	Hostnames nmapHostnames `xml:"hostnames"`
	Ports     nmapPorts     `xml:"ports"`
	OS        nmapOS        `xml:"os"`
}

type nmapStatus struct {
	State string `xml:"state,attr"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapHostnames struct {
	Hostnames []nmapHostname `xml:"hostname"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
}

type nmapPorts struct {
	Ports []nmapPort `xml:"port"`
}

type nmapPort struct {
	Protocol string      `xml:"protocol,attr"`
	PortID   string      `xml:"portid,attr"`
	State    nmapState   `xml:"state"`
	Service  nmapService `xml:"service"`
}

type nmapState struct {
	State string `xml:"state,attr"`
}

type nmapService struct {
	Name    string `xml:"name,attr"`
	Product string `xml:"product,attr"`
	Version string `xml:"version,attr"`
}

type nmapOS struct {
	OSMatches []nmapOSMatch `xml:"osmatch"`
}

type nmapOSMatch struct {
	Name     string `xml:"name,attr"`
	Accuracy string `xml:"accuracy,attr"`
}
