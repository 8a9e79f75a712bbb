// Package subfinder adapts the subfinder passive subdomain enumerator.
package subfinder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/core"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/validation"
	"github.com/CodeMonkeyCybersecurity/neosec/pkg/types"
)

type Adapter struct {
	resolver core.BinaryResolver
}

func New(resolver core.BinaryResolver) *Adapter {
	return &Adapter{resolver: resolver}
}

func (a *Adapter) Name() string { return "subfinder" }

func (a *Adapter) Category() types.ToolCategory { return types.CategoryRecon }

func (a *Adapter) RequiredBinaries() []string { return []string{"subfinder"} }

func (a *Adapter) Describe() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:             "subfinder",
		Category:         types.CategoryRecon,
		Description:      "Passive subdomain discovery",
		RequiredBinaries: []string{"subfinder"},
	}
}

// BuildCommand accepts "sources" (identifier list) and "max_time"
// (minutes, number). Subfinder targets are domains only.
func (a *Adapter) BuildCommand(target string, options map[string]types.OptionValue) ([]string, error) {
	binary, ok := a.resolver.ResolveBinary("subfinder")
	if !ok {
		return nil, fmt.Errorf("subfinder binary not available")
	}
	kind, err := validation.ValidateTarget(target)
	if err != nil {
		return nil, err
	}
	if kind != validation.TargetHostname {
		return nil, &validation.InvalidInputError{
			Field:  "target",
			Value:  target,
			Reason: "subfinder requires a domain name",
		}
	}

	args := []string{binary, "-d", target, "-oJ", "-silent"}

	for key, value := range options {
		switch key {
		case "sources":
			if err := validation.CheckOption(key, value.String(), validation.IdentifierList); err != nil {
				return nil, err
			}
			args = append(args, "-sources", value.String())
		case "max_time":
			if err := validation.CheckOption(key, value.String(), validation.Number); err != nil {
				return nil, err
			}
			args = append(args, "-max-time", value.String())
		default:
			return nil, &validation.InvalidInputError{
				Field:  "option " + key,
				Value:  value.String(),
				Reason: "not in the subfinder option allowlist",
			}
		}
	}

	return args, nil
}

type subdomainLine struct {
	Host   string `json:"host"`
	IP     string `json:"ip"`
	CNAME  string `json:"cname"`
	Source string `json:"source"`
}

func (a *Adapter) ParseOutput(stdout, stderr []byte, formatHint string) (*types.ParsedResult, error) {
	result := &types.ParsedResult{}

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry subdomainLine
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, &core.DataParsingError{
				Tool:   "subfinder",
				Reason: fmt.Sprintf("invalid JSON on line %d", line),
				Err:    err,
			}
		}
		if entry.Host == "" {
			continue
		}
		sub := types.Subdomain{
			Name:   entry.Host,
			CNAME:  entry.CNAME,
			Source: entry.Source,
		}
		if sub.Source == "" {
			sub.Source = "subfinder"
		}
		if entry.IP != "" {
			sub.Addresses = []string{entry.IP}
		}
		result.Assets.Subdomains = append(result.Assets.Subdomains, sub)
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.DataParsingError{Tool: "subfinder", Reason: "scan failed", Err: err}
	}

	return result, nil
}
