package gateway

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// GatekeeperRequest asks whether a turn should produce a structured artifact.
type GatekeeperRequest struct {
	Content string `json:"content"`
}

// GatekeeperResponse is the classification outcome. Type is one of table,
// doc, sheet, image when ShouldCreate is set.
type GatekeeperResponse struct {
	ShouldCreate bool    `json:"shouldCreate"`
	Type         string  `json:"type,omitempty"`
	Confidence   float64 `json:"confidence"`
	Rationale    string  `json:"rationale"`
}

var (
	tableRowPattern = regexp.MustCompile(`(?m)^\s*\|.+\|\s*$`)
	sheetPattern    = regexp.MustCompile(`(?i)\b(?:spreadsheet|csv|rows and columns|budget breakdown|tabular data)\b`)
	imagePattern    = regexp.MustCompile(`(?i)\b(?:diagram|chart|graph|flowchart|logo|illustration|mockup)\b`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,3}\s+\S`)
)

const docLengthThreshold = 1500

func (s *Server) handleGatekeeper(w http.ResponseWriter, r *http.Request) {
	var req GatekeeperRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024*1024)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeJSON(w, classifyArtifact(req.Content), http.StatusOK)
}

// classifyArtifact is rule-based: strong structural signals beat keyword
// hints, and short unstructured content never creates an artifact.
func classifyArtifact(content string) GatekeeperResponse {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return GatekeeperResponse{Rationale: "empty content"}
	}

	if rows := tableRowPattern.FindAllString(trimmed, -1); len(rows) >= 3 {
		return GatekeeperResponse{
			ShouldCreate: true,
			Type:         "table",
			Confidence:   0.9,
			Rationale:    "content contains a markdown table",
		}
	}
	if sheetPattern.MatchString(trimmed) {
		return GatekeeperResponse{
			ShouldCreate: true,
			Type:         "sheet",
			Confidence:   0.7,
			Rationale:    "content references tabular or spreadsheet data",
		}
	}
	if imagePattern.MatchString(trimmed) {
		return GatekeeperResponse{
			ShouldCreate: true,
			Type:         "image",
			Confidence:   0.6,
			Rationale:    "content requests a visual artifact",
		}
	}
	if len(trimmed) >= docLengthThreshold && len(headingPattern.FindAllString(trimmed, -1)) >= 3 {
		return GatekeeperResponse{
			ShouldCreate: true,
			Type:         "doc",
			Confidence:   0.65,
			Rationale:    "long structured content with multiple sections",
		}
	}

	return GatekeeperResponse{
		Confidence: 0.8,
		Rationale:  "no structural artifact signal",
	}
}
