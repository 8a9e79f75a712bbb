// Package nuclei adapts the nuclei template scanner. Findings arrive as
// JSONL and normalize into vulnerabilities with CVSS and CVE metadata.
package nuclei

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"

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

func (a *Adapter) Name() string { return "nuclei" }

func (a *Adapter) Category() types.ToolCategory { return types.CategoryScanner }

func (a *Adapter) RequiredBinaries() []string { return []string{"nuclei"} }

func (a *Adapter) Describe() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:             "nuclei",
		Category:         types.CategoryScanner,
		Description:      "Template-based vulnerability scanner",
		RequiredBinaries: []string{"nuclei"},
	}
}

// BuildCommand accepts "severity" and "tags" (identifier lists),
// "templates" (relative path), "rate_limit" and "concurrency" (numbers).
func (a *Adapter) BuildCommand(target string, options map[string]types.OptionValue) ([]string, error) {
	binary, ok := a.resolver.ResolveBinary("nuclei")
	if !ok {
		return nil, fmt.Errorf("nuclei binary not available")
	}
	if _, err := validation.ValidateTarget(target); err != nil {
		return nil, err
	}

	args := []string{binary, "-u", target, "-jsonl", "-silent"}

	for key, value := range options {
		switch key {
		case "severity":
			if err := validation.CheckOption(key, value.String(), validation.IdentifierList); err != nil {
				return nil, err
			}
			args = append(args, "-severity", value.String())
		case "tags":
			if err := validation.CheckOption(key, value.String(), validation.IdentifierList); err != nil {
				return nil, err
			}
			args = append(args, "-tags", value.String())
		case "templates":
			if err := validation.CheckOption(key, value.String(), validation.RelPath); err != nil {
				return nil, err
			}
			args = append(args, "-t", value.String())
		case "rate_limit":
			if err := validation.CheckOption(key, value.String(), validation.Number); err != nil {
				return nil, err
			}
			args = append(args, "-rate-limit", value.String())
		case "concurrency":
			if err := validation.CheckOption(key, value.String(), validation.Number); err != nil {
				return nil, err
			}
			args = append(args, "-concurrency", value.String())
		default:
			return nil, &validation.InvalidInputError{
				Field:  "option " + key,
				Value:  value.String(),
				Reason: "not in the nuclei option allowlist",
			}
		}
	}

	return args, nil
}

type findingLine struct {
	TemplateID string `json:"template-id"`
	Type       string `json:"type"`
	Host       string `json:"host"`
	MatchedAt  string `json:"matched-at"`
	Timestamp  string `json:"timestamp"`
	Info       struct {
		Name           string   `json:"name"`
		Description    string   `json:"description"`
		Severity       string   `json:"severity"`
		Tags           []string `json:"tags"`
		Classification struct {
			CVEID       []string `json:"cve-id"`
			CVSSMetrics string   `json:"cvss-metrics"`
			CVSSScore   float64  `json:"cvss-score"`
		} `json:"classification"`
	} `json:"info"`
	ExtractedResults []string `json:"extracted-results"`
}

func (a *Adapter) ParseOutput(stdout, stderr []byte, formatHint string) (*types.ParsedResult, error) {
	result := &types.ParsedResult{}

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var finding findingLine
		if err := json.Unmarshal(raw, &finding); err != nil {
			return nil, &core.DataParsingError{
				Tool:   "nuclei",
				Reason: fmt.Sprintf("invalid JSON on line %d", line),
				Err:    err,
			}
		}
		if finding.TemplateID == "" {
			continue
		}

		severity := types.Severity(finding.Info.Severity)
		if !severity.Valid() {
			severity = types.SeverityInfo
		}

		affected := finding.MatchedAt
		if affected == "" {
			affected = finding.Host
		}

		vuln := types.Vulnerability{
			ID:           fmt.Sprintf("nuclei:%s:%s", finding.TemplateID, affected),
			Name:         finding.Info.Name,
			Description:  finding.Info.Description,
			Severity:     severity,
			CVEs:         finding.Info.Classification.CVEID,
			Category:     finding.Type,
			Affected:     affected,
			Tool:         "nuclei",
			DiscoveredAt: parseTimestamp(finding.Timestamp),
		}
		if len(finding.ExtractedResults) > 0 {
			vuln.Evidence = fmt.Sprintf("extracted: %v", finding.ExtractedResults)
		}
		if finding.Info.Classification.CVSSMetrics != "" {
			vuln.CVSS = &types.CVSS{
				Vector:    finding.Info.Classification.CVSSMetrics,
				BaseScore: finding.Info.Classification.CVSSScore,
				Version:   cvssVersion(finding.Info.Classification.CVSSMetrics),
			}
		}

		result.Vulnerabilities = append(result.Vulnerabilities, vuln)
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.DataParsingError{Tool: "nuclei", Reason: "scan failed", Err: err}
	}

	return result, nil
}

func parseTimestamp(ts string) time.Time {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Unix(0, 0).UTC()
}

func cvssVersion(vector string) string {
	if bytes.HasPrefix([]byte(vector), []byte("CVSS:3.1")) {
		return "3.1"
	}
	if bytes.HasPrefix([]byte(vector), []byte("CVSS:3.0")) {
		return "3.0"
	}
	return ""
}
