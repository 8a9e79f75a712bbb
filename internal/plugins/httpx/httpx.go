// Package httpx adapts the httpx HTTP prober. Output is one JSON object
// per line; each probed URL becomes a WebApp asset.
package httpx

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

func (a *Adapter) Name() string { return "httpx" }

func (a *Adapter) Category() types.ToolCategory { return types.CategoryRecon }

func (a *Adapter) RequiredBinaries() []string { return []string{"httpx"} }

func (a *Adapter) Describe() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:             "httpx",
		Category:         types.CategoryRecon,
		Description:      "HTTP service prober and technology fingerprinter",
		RequiredBinaries: []string{"httpx"},
	}
}

// BuildCommand accepts "threads" and "rate_limit" (numbers) plus
// "follow_redirects" (bool).
func (a *Adapter) BuildCommand(target string, options map[string]types.OptionValue) ([]string, error) {
	binary, ok := a.resolver.ResolveBinary("httpx")
	if !ok {
		return nil, fmt.Errorf("httpx binary not available")
	}
	if _, err := validation.ValidateTarget(target); err != nil {
		return nil, err
	}

	args := []string{binary, "-u", target, "-json", "-silent", "-title", "-tech-detect", "-status-code", "-web-server"}

	for key, value := range options {
		switch key {
		case "threads":
			if err := validation.CheckOption(key, value.String(), validation.Number); err != nil {
				return nil, err
			}
			args = append(args, "-threads", value.String())
		case "rate_limit":
			if err := validation.CheckOption(key, value.String(), validation.Number); err != nil {
				return nil, err
			}
			args = append(args, "-rate-limit", value.String())
		case "follow_redirects":
			if value.Truthy() {
				args = append(args, "-follow-redirects")
			}
		default:
			return nil, &validation.InvalidInputError{
				Field:  "option " + key,
				Value:  value.String(),
				Reason: "not in the httpx option allowlist",
			}
		}
	}

	return args, nil
}

type probeLine struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	StatusCode int      `json:"status_code"`
	WebServer  string   `json:"webserver"`
	Tech       []string `json:"tech"`
}

func (a *Adapter) ParseOutput(stdout, stderr []byte, formatHint string) (*types.ParsedResult, error) {
	result := &types.ParsedResult{}

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var probe probeLine
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, &core.DataParsingError{
				Tool:   "httpx",
				Reason: fmt.Sprintf("invalid JSON on line %d", line),
				Err:    err,
			}
		}
		if probe.URL == "" {
			continue
		}
		result.Assets.WebApps = append(result.Assets.WebApps, types.WebApp{
			URL:          probe.URL,
			Title:        probe.Title,
			StatusCode:   probe.StatusCode,
			Server:       probe.WebServer,
			Technologies: probe.Tech,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.DataParsingError{Tool: "httpx", Reason: "scan failed", Err: err}
	}

	return result, nil
}
