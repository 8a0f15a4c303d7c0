// Package dcm wraps the external DICOM parsing library behind a small
// tag-dictionary interface. The rest of the catalog only ever sees tag
// lookups and sequence navigation, so the parser can be replaced (or faked
// in tests) without touching the extraction logic.
package dcm

import (
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Source is a read-only view of one parsed DICOM object. Multi-valued tags
// are joined with backslashes, the conquest convention.
type Source interface {
	// Path returns the location of the underlying file, empty for
	// in-memory sources.
	Path() string
	// String returns the tag's value as text and whether the tag exists.
	String(group, element uint16) (string, bool)
	// Sequence returns the tag's nested items and whether the tag exists.
	Sequence(group, element uint16) ([]Item, bool)
}

// Item is one item of a DICOM sequence.
type Item interface {
	String(group, element uint16) (string, bool)
	Sequence(group, element uint16) ([]Item, bool)
}

type tagKey struct {
	group, element uint16
}

// fileSource is the Source backed by the external parser.
type fileSource struct {
	path  string
	elems map[tagKey]*dicom.Element
}

// ReadFile parses the DICOM file at path. Pixel data is skipped; the catalog
// only needs header tags.
func ReadFile(path string) (Source, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, err
	}
	return &fileSource{path: path, elems: indexElements(ds.Elements)}, nil
}

func indexElements(elems []*dicom.Element) map[tagKey]*dicom.Element {
	m := make(map[tagKey]*dicom.Element, len(elems))
	for _, e := range elems {
		m[tagKey{e.Tag.Group, e.Tag.Element}] = e
	}
	return m
}

func (s *fileSource) Path() string {
	return s.path
}

func (s *fileSource) String(group, element uint16) (string, bool) {
	e, ok := s.elems[tagKey{group, element}]
	if !ok {
		return "", false
	}
	return formatValue(e)
}

func (s *fileSource) Sequence(group, element uint16) ([]Item, bool) {
	e, ok := s.elems[tagKey{group, element}]
	if !ok {
		return nil, false
	}
	return sequenceItems(e)
}

// seqItem adapts one sequence item to the Item interface.
type seqItem struct {
	elems map[tagKey]*dicom.Element
}

func (it *seqItem) String(group, element uint16) (string, bool) {
	e, ok := it.elems[tagKey{group, element}]
	if !ok {
		return "", false
	}
	return formatValue(e)
}

func (it *seqItem) Sequence(group, element uint16) ([]Item, bool) {
	e, ok := it.elems[tagKey{group, element}]
	if !ok {
		return nil, false
	}
	return sequenceItems(e)
}

func sequenceItems(e *dicom.Element) ([]Item, bool) {
	if e.Value.ValueType() != dicom.Sequences {
		return nil, false
	}
	raw, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, false
	}
	items := make([]Item, 0, len(raw))
	for _, item := range raw {
		elems, ok := item.GetValue().([]*dicom.Element)
		if !ok {
			continue
		}
		items = append(items, &seqItem{elems: indexElements(elems)})
	}
	return items, true
}

// formatValue renders an element's value as text. Multi-valued tags are
// backslash joined. Sequences and bulk byte data have no text rendering.
func formatValue(e *dicom.Element) (string, bool) {
	switch e.Value.ValueType() {
	case dicom.Strings:
		vals, _ := e.Value.GetValue().([]string)
		return strings.Join(vals, `\`), true
	case dicom.Ints:
		vals, _ := e.Value.GetValue().([]int)
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, `\`), true
	case dicom.Floats:
		vals, _ := e.Value.GetValue().([]float64)
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strings.Join(parts, `\`), true
	default:
		return "", false
	}
}

// TagName returns the dictionary keyword of a tag, or its (gggg,eeee) form
// when the dictionary does not know it. Used for log messages only.
func TagName(group, element uint16) string {
	info, err := tag.Find(tag.Tag{Group: group, Element: element})
	if err != nil || info.Name == "" {
		return "(" + strconv.FormatUint(uint64(group), 16) + "," + strconv.FormatUint(uint64(element), 16) + ")"
	}
	return info.Name
}
