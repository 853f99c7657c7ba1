// Package mode maps each workflow mode to its run configuration: system
// prompt, tools, memory categories and iteration bound.
package mode

import (
	"errors"
	"fmt"
)

// ErrUnknownMode is returned when parsing an unrecognized mode name.
var ErrUnknownMode = errors.New("unknown mode")

// Name is the wire name of a mode.
type Name string

// Mode names.
const (
	NameDiscovery         Name = "discovery"
	NameValidation        Name = "validation"
	NamePdfGeneration     Name = "pdf-generation"
	NameLandingGeneration Name = "landing-generation"
)

// Mode is the closed set of workflow modes. Only the four types below
// implement it.
type Mode interface {
	Name() Name
	sealed()
}

// Discovery drafts new pains from conversation.
type Discovery struct{}

// Validation researches the chat's single draft under validation.
type Validation struct{}

// PdfGeneration writes an HTML report for one draft.
type PdfGeneration struct {
	PainID string
}

// LandingGeneration writes a landing page for one draft.
type LandingGeneration struct {
	PainID string
}

func (Discovery) Name() Name         { return NameDiscovery }
func (Validation) Name() Name        { return NameValidation }
func (PdfGeneration) Name() Name     { return NamePdfGeneration }
func (LandingGeneration) Name() Name { return NameLandingGeneration }

func (Discovery) sealed()         {}
func (Validation) sealed()        {}
func (PdfGeneration) sealed()     {}
func (LandingGeneration) sealed() {}

// Parse returns the mode called name. painID is the subject of the document
// modes and ignored otherwise.
func Parse(name, painID string) (Mode, error) {
	switch Name(name) {
	case NameDiscovery, "":
		return Discovery{}, nil
	case NameValidation:
		return Validation{}, nil
	case NamePdfGeneration, "pdf":
		return PdfGeneration{PainID: painID}, nil
	case NameLandingGeneration, "landing":
		return LandingGeneration{PainID: painID}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// Subject returns the draft a document mode is bound to, or "".
func Subject(m Mode) string {
	switch v := m.(type) {
	case PdfGeneration:
		return v.PainID
	case LandingGeneration:
		return v.PainID
	}
	return ""
}
