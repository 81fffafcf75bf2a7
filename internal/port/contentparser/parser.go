// Package contentparser defines the port for decoding stored pillar content.
package contentparser

import (
	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

// Parser turns raw pillar JSON into a typed result. It never fails; content
// it cannot decode comes back as content.Raw.
type Parser interface {
	Parse(stage strategy.PillarType, raw []byte) content.Result
}
