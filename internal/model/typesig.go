package model

import "strings"

// SegmentKind tags a TypeSegment.
type SegmentKind string

const (
	// Literal text is reproduced verbatim by a renderer.
	Literal SegmentKind = "literal"
	// Referenceable text names a type a renderer may hyperlink.
	Referenceable SegmentKind = "referenceable"
)

type TypeSegment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text"`
}

func LiteralSegment(text string) TypeSegment {
	return TypeSegment{Kind: Literal, Text: text}
}

func ReferenceSegment(text string) TypeSegment {
	return TypeSegment{Kind: Referenceable, Text: text}
}

// TypeSignature is an ordered list of segments whose concatenated text is the
// rendered type.
type TypeSignature []TypeSegment

func (t TypeSignature) String() string {
	var b strings.Builder
	for _, s := range t {
		b.WriteString(s.Text)
	}
	return b.String()
}

// MergeLiterals joins runs of adjacent Literal segments and drops empty
// literals. The result never aliases t.
func MergeLiterals(t TypeSignature) TypeSignature {
	out := make(TypeSignature, 0, len(t))
	for _, seg := range t {
		if seg.Kind == Literal {
			if seg.Text == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Kind == Literal {
				out[n-1].Text += seg.Text
				continue
			}
		}
		out = append(out, seg)
	}
	return out
}
