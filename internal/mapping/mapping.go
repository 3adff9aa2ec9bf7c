// Package mapping records class and member renames and rewrites classes to
// apply them.
package mapping

import (
	"sort"
	"strings"
	"sync"
)

// Member identifies a field or method by owner, name and descriptor.
type Member struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Desc  string `json:"desc"`
}

// Entry is one rename, as reported in results.
type Entry struct {
	Kind    string `json:"kind"` // class, field or method
	Owner   string `json:"owner,omitempty"`
	Name    string `json:"name"`
	Desc    string `json:"desc,omitempty"`
	NewName string `json:"new_name"`
}

// Mappings is a set of renames keyed by old names. Identity renames are
// dropped. Safe for concurrent use.
type Mappings struct {
	mu      sync.RWMutex
	classes map[string]string
	fields  map[Member]string
	methods map[Member]string
}

// New returns an empty set.
func New() *Mappings {
	return &Mappings{
		classes: make(map[string]string),
		fields:  make(map[Member]string),
		methods: make(map[Member]string),
	}
}

// AddClass renames class old to name.
func (m *Mappings) AddClass(old, name string) {
	if old == name {
		return
	}
	m.mu.Lock()
	m.classes[old] = name
	m.mu.Unlock()
}

// AddField renames field owner.old:desc to name.
func (m *Mappings) AddField(owner, old, desc, name string) {
	if old == name {
		return
	}
	m.mu.Lock()
	m.fields[Member{owner, old, desc}] = name
	m.mu.Unlock()
}

// AddMethod renames method owner.old desc to name.
func (m *Mappings) AddMethod(owner, old, desc, name string) {
	if old == name {
		return
	}
	m.mu.Lock()
	m.methods[Member{owner, old, desc}] = name
	m.mu.Unlock()
}

// Merge copies every rename of o into m. Later entries win.
func (m *Mappings) Merge(o *Mappings) {
	if o == nil || o == m {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range o.classes {
		m.classes[k] = v
	}
	for k, v := range o.fields {
		m.fields[k] = v
	}
	for k, v := range o.methods {
		m.methods[k] = v
	}
}

// Len returns the number of renames.
func (m *Mappings) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.classes) + len(m.fields) + len(m.methods)
}

// Class returns the new name of a class, or name itself.
func (m *Mappings) Class(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.classes[name]; ok {
		return n
	}
	return name
}

// Field returns the new name of a field, or name itself. Keys use the old
// owner and descriptor.
func (m *Mappings) Field(owner, name, desc string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.fields[Member{owner, name, desc}]; ok {
		return n
	}
	return name
}

// Method returns the new name of a method, or name itself.
func (m *Mappings) Method(owner, name, desc string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.methods[Member{owner, name, desc}]; ok {
		return n
	}
	return name
}

// Desc rewrites every class reference in a field or method descriptor or a
// generic signature.
func (m *Mappings) Desc(desc string) string {
	var b strings.Builder
	i := 0
	if strings.HasPrefix(desc, "<") {
		i = m.formals(&b, desc)
	}
	m.scan(&b, desc[i:])
	return b.String()
}

// scan copies s, rewriting class names. Type variables and inner class
// suffixes are copied verbatim.
func (m *Mappings) scan(b *strings.Builder, s string) {
	for i := 0; i < len(s); {
		c := s[i]
		switch c {
		case 'L', 'T', '.':
			j := i + 1
			for j < len(s) && s[j] != ';' && s[j] != '<' && s[j] != '.' {
				j++
			}
			b.WriteByte(c)
			if c == 'L' {
				b.WriteString(m.Class(s[i+1 : j]))
			} else {
				b.WriteString(s[i+1 : j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
}

// formals copies the formal type parameter section of a signature and
// returns the index just past it.
func (m *Mappings) formals(b *strings.Builder, s string) int {
	b.WriteByte('<')
	i := 1
	for i < len(s) && s[i] != '>' {
		colon := strings.IndexByte(s[i:], ':')
		if colon < 0 {
			b.WriteString(s[i:])
			return len(s)
		}
		b.WriteString(s[i : i+colon])
		i += colon
		for i < len(s) && s[i] == ':' {
			b.WriteByte(':')
			i++
			if i < len(s) && s[i] != ':' && s[i] != '>' {
				end := refTypeEnd(s, i)
				m.scan(b, s[i:end])
				i = end
			}
		}
	}
	if i < len(s) {
		b.WriteByte('>')
		i++
	}
	return i
}

// refTypeEnd returns the index just past the reference type starting at i.
func refTypeEnd(s string, i int) int {
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i < len(s) && s[i] != 'L' && s[i] != 'T' {
		return i + 1
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '<':
			depth++
		case '>':
			depth--
		case ';':
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(s)
}

// Entries lists every rename, sorted by kind then old name.
func (m *Mappings) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.classes)+len(m.fields)+len(m.methods))
	for old, n := range m.classes {
		out = append(out, Entry{Kind: "class", Name: old, NewName: n})
	}
	for k, n := range m.fields {
		out = append(out, Entry{Kind: "field", Owner: k.Owner, Name: k.Name, Desc: k.Desc, NewName: n})
	}
	for k, n := range m.methods {
		out = append(out, Entry{Kind: "method", Owner: k.Owner, Name: k.Name, Desc: k.Desc, NewName: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Desc < b.Desc
	})
	return out
}
