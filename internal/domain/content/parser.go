package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Score sub-fields patched into audit content after a deterministic recomputation.
const (
	RiskScoreField = "riskScore"
	BmfScoreField  = "brandMarketFitScore"
)

// Parser decodes stored pillar JSON into typed payloads. It never fails:
// anything that does not decode comes back as Raw with an explanatory issue.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes raw content of the given stage.
func (p *Parser) Parse(stage strategy.PillarType, raw []byte) Result {
	if strategy.IsNullContent(raw) {
		return Raw{Type: stage, Blob: raw, Issues: []Issue{{Message: "content is empty"}}}
	}

	payload, err := strategy.Visit[Payload](stage, emptyPayloads{})
	if err != nil {
		return Raw{Type: stage, Blob: raw, Issues: []Issue{{Message: err.Error()}}}
	}

	if err := json.Unmarshal(unwrapString(raw), payload); err != nil {
		return Raw{Type: stage, Blob: raw, Issues: []Issue{{Message: fmt.Sprintf("decode %s content: %v", stage, err)}}}
	}

	return Typed{Type: stage, Payload: payload, Issues: payload.validate()}
}

// unwrapString returns the inner document when raw is a JSON string that
// itself holds a JSON object, as generators sometimes double-encode.
func unwrapString(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return raw
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return []byte(s)
	}
	return raw
}

// PatchScore sets field to score inside a JSON object, leaving every other
// key untouched. A double-encoded object is unwrapped first, so any content
// Parse reads as typed can be patched. Other content is returned unchanged
// with ok=false.
func PatchScore(raw []byte, field string, score int) (patched []byte, ok bool, err error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(unwrapString(raw), &doc); err != nil || doc == nil {
		return raw, false, nil
	}
	doc[field] = json.RawMessage(fmt.Sprintf("%d", score))
	out, err := json.Marshal(doc)
	if err != nil {
		return raw, false, fmt.Errorf("marshal patched content: %w", err)
	}
	return out, true, nil
}

type emptyPayloads struct{}

func (emptyPayloads) Authenticity() Payload   { return &Authenticity{} }
func (emptyPayloads) Distinction() Payload    { return &Distinction{} }
func (emptyPayloads) Value() Payload          { return &Value{} }
func (emptyPayloads) Engagement() Payload     { return &Engagement{} }
func (emptyPayloads) Risk() Payload           { return &RiskAudit{} }
func (emptyPayloads) Track() Payload          { return &MarketAudit{} }
func (emptyPayloads) Implementation() Payload { return &Implementation{} }
func (emptyPayloads) Synthesis() Payload      { return &Synthesis{} }
