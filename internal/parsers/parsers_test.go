// ABOUTME: Unit tests for the tool output parsers.
// ABOUTME: Verifies canonical mapping, severity defaults, and tolerance of malformed payloads.

package parsers

import (
	"testing"

	"github.com/jfeddern/ScanRelay/internal/types"
)

func TestParseSemgrep(t *testing.T) {
	raw := []byte(`{
		"results": [
			{"check_id": "go.lang.security.audit.sqli", "path": "db/query.go",
			 "start": {"line": 42, "col": 3},
			 "extra": {"message": "possible SQL injection", "severity": "ERROR"}},
			{"check_id": "go.lang.correctness.todo", "path": "main.go",
			 "start": {"line": 7, "col": 1},
			 "extra": {"message": "leftover TODO", "severity": "SOMETHING-NEW"}}
		]
	}`)

	findings := ParseSemgrep(raw)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}

	if findings[0].Severity != types.SeverityHigh {
		t.Errorf("ERROR should map to high, got %s", findings[0].Severity)
	}
	if findings[0].SourceAgent != types.AgentStatic {
		t.Errorf("source agent = %s, want static", findings[0].SourceAgent)
	}
	if findings[0].Metadata["line"] != 42 {
		t.Errorf("line metadata = %v, want 42", findings[0].Metadata["line"])
	}

	// Unrecognized native severity maps to the lowest non-informational tier
	if findings[1].Severity != types.SeverityLow {
		t.Errorf("unrecognized severity should map to low, got %s", findings[1].Severity)
	}
}

func TestParseSemgrepMalformed(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("not json"), []byte(`{"results": "nope"}`)} {
		if findings := ParseSemgrep(raw); len(findings) != 0 {
			t.Errorf("malformed payload %q should yield no findings, got %d", raw, len(findings))
		}
	}
}

func TestParseTrivy(t *testing.T) {
	raw := []byte(`{
		"Results": [
			{"Target": "go.mod", "Vulnerabilities": [
				{"VulnerabilityID": "CVE-2024-1234", "PkgName": "libfoo",
				 "InstalledVersion": "1.0.0", "FixedVersion": "1.0.1",
				 "Title": "libfoo overflow", "Description": "heap overflow",
				 "Severity": "HIGH", "PrimaryURL": "https://avd.example/CVE-2024-1234"},
				{"VulnerabilityID": "CVE-2024-9999", "PkgName": "libbar",
				 "Severity": "WHATEVER"}
			]},
			{"Target": "empty.lock"}
		]
	}`)

	findings := ParseTrivy(raw)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}

	first := findings[0]
	if first.ID != "CVE-2024-1234" || first.Severity != types.SeverityHigh {
		t.Errorf("unexpected first finding: %+v", first)
	}
	if first.Remediation != "https://avd.example/CVE-2024-1234" {
		t.Errorf("remediation should carry the primary URL, got %q", first.Remediation)
	}
	if first.SourceAgent != types.AgentDependency {
		t.Errorf("source agent = %s, want dependency", first.SourceAgent)
	}

	second := findings[1]
	if second.Severity != types.SeverityLow {
		t.Errorf("unknown trivy severity should map to low, got %s", second.Severity)
	}
	if second.Title != "CVE-2024-9999" {
		t.Errorf("missing title should fall back to the vulnerability id, got %q", second.Title)
	}
}

func TestParseGitleaks(t *testing.T) {
	raw := []byte(`[
		{"RuleID": "aws-access-key", "Description": "AWS access key", "File": "config.env", "StartLine": 12},
		{"rule": "generic-api-key", "File": "settings.py", "StartLine": 3}
	]`)

	findings := ParseGitleaks(raw)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	for _, f := range findings {
		if f.Severity != types.SeverityCritical {
			t.Errorf("secret findings are always critical, got %s", f.Severity)
		}
		if f.SourceAgent != types.AgentSecret {
			t.Errorf("source agent = %s, want secret", f.SourceAgent)
		}
	}
	if findings[1].Title != "generic-api-key" {
		t.Errorf("lowercase rule field should be honored, got %q", findings[1].Title)
	}

	if ParseGitleaks([]byte("{broken")) != nil {
		t.Error("malformed gitleaks payload should yield no findings")
	}
}

func TestParseFfufUsesLastValidBlob(t *testing.T) {
	raw := []byte(`garbage line
{"results": [{"url": "https://t/old", "status": 200, "length": 1}]}
{"results": [{"url": "https://t/admin", "status": 401, "length": 321}]}`)

	findings := ParseFfuf(raw)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding from the last blob, got %d", len(findings))
	}
	if findings[0].Metadata["url"] != "https://t/admin" {
		t.Errorf("expected last blob to win, got %v", findings[0].Metadata["url"])
	}
	if findings[0].Severity != types.SeverityMedium {
		t.Errorf("ffuf findings are medium, got %s", findings[0].Severity)
	}

	if ParseFfuf([]byte("   \n ")) != nil {
		t.Error("blank ffuf output should yield no findings")
	}
}

func TestParseZAP(t *testing.T) {
	raw := []byte(`{
		"site": [
			{"@name": "https://example.test", "alerts": [
				{"pluginid": "10038", "alert": "CSP header missing",
				 "riskdesc": "Medium (High)", "desc": "No CSP", "solution": "Set CSP"},
				{"pluginid": "90001", "alert": "Odd alert", "riskdesc": "Bizarre"}
			]}
		]
	}`)

	findings := ParseZAP(raw)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	if findings[0].Severity != types.SeverityMedium {
		t.Errorf("riskdesc Medium should map to medium, got %s", findings[0].Severity)
	}
	if findings[1].Severity != types.SeverityMedium {
		t.Errorf("unrecognized riskdesc defaults to medium, got %s", findings[1].Severity)
	}
	if findings[0].SourceAgent != types.AgentDAST {
		t.Errorf("source agent = %s, want dast", findings[0].SourceAgent)
	}
}

func TestParseNuclei(t *testing.T) {
	raw := []byte(`{"template-id": "exposed-panel", "matched-at": "https://t/login", "info": {"name": "Exposed Panel", "severity": "high", "description": "admin panel"}}
not json at all
{"template-id": "tls-version", "matched-at": "https://t", "info": {"name": "TLS Version", "severity": "wild"}}`)

	findings := ParseNuclei(raw)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}
	if findings[0].ID != "exposed-panel" || findings[0].Severity != types.SeverityHigh {
		t.Errorf("unexpected first finding: %+v", findings[0])
	}
	if findings[1].Severity != types.SeverityLow {
		t.Errorf("unknown nuclei severity should map to low, got %s", findings[1].Severity)
	}
	if findings[0].SourceAgent != types.AgentTemplate {
		t.Errorf("source agent = %s, want template", findings[0].SourceAgent)
	}
}
