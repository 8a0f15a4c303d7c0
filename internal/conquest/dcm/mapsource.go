package dcm

// Tag is a plain (group, element) pair used to key MapSource values.
type Tag struct {
	Group, Element uint16
}

// MapSource is an in-memory Source. Tests and synthetic pipelines use it in
// place of a parsed file.
type MapSource struct {
	FilePath string
	Values   map[Tag]string
	Items    map[Tag][]*MapSource
}

var _ Source = (*MapSource)(nil)
var _ Item = (*MapSource)(nil)

func (m *MapSource) Path() string {
	return m.FilePath
}

func (m *MapSource) String(group, element uint16) (string, bool) {
	v, ok := m.Values[Tag{group, element}]
	return v, ok
}

func (m *MapSource) Sequence(group, element uint16) ([]Item, bool) {
	nested, ok := m.Items[Tag{group, element}]
	if !ok {
		return nil, false
	}
	items := make([]Item, len(nested))
	for i, n := range nested {
		items[i] = n
	}
	return items, true
}
