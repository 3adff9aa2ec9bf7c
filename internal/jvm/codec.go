package jvm

import (
	"encoding/json"
	"fmt"
	"io"
)

type bundleFile struct {
	Classes []*Class `json:"classes"`
}

// Load decodes a JSON bundle and checks every method body for dangling
// labels.
func Load(r io.Reader) (*Bundle, error) {
	var f bundleFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	b := NewBundle()
	for _, c := range f.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: class without name", ErrMalformed)
		}
		if _, dup := b.classes[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate class %s", ErrMalformed, c.Name)
		}
		for _, m := range c.Methods {
			if err := Validate(m.Code); err != nil {
				return nil, fmt.Errorf("%s.%s%s: %w", c.Name, m.Name, m.Desc, err)
			}
		}
		b.classes[c.Name] = c
	}
	return b, nil
}

// Save encodes the bundle as indented JSON, classes sorted by name.
func Save(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundleFile{Classes: b.Classes()}); err != nil {
		return fmt.Errorf("jvm: encode bundle: %w", err)
	}
	return nil
}

// Validate checks that every referenced label is defined exactly once and
// that branch operands are present.
func Validate(c *Code) error {
	if c == nil {
		return nil
	}
	defined := make(map[LabelID]bool)
	for _, in := range c.Insns {
		if in.Op != LABEL {
			continue
		}
		if defined[in.Label] {
			return fmt.Errorf("%w: label %d defined twice", ErrMalformed, in.Label)
		}
		defined[in.Label] = true
	}
	for i, in := range c.Insns {
		if IsSwitch(in.Op) && in.Switch == nil {
			return fmt.Errorf("%w: %s at %d without table", ErrMalformed, in.Op, i)
		}
		if in.Op == LOOKUPSWITCH && len(in.Switch.Keys) != len(in.Switch.Labels) {
			return fmt.Errorf("%w: lookupswitch at %d has %d keys and %d labels",
				ErrMalformed, i, len(in.Switch.Keys), len(in.Switch.Labels))
		}
		if (in.Op == LDC || in.Op == LDC_W || in.Op == LDC2_W) && in.Const == nil {
			return fmt.Errorf("%w: %s at %d without constant", ErrMalformed, in.Op, i)
		}
		for _, l := range in.Labels() {
			if !defined[l] {
				return fmt.Errorf("%w: %s at %d targets undefined label %d", ErrMalformed, in.Op, i, l)
			}
		}
	}
	for _, tc := range c.TryCatches {
		for _, l := range []LabelID{tc.Start, tc.End, tc.Handler} {
			if !defined[l] {
				return fmt.Errorf("%w: exception entry references undefined label %d", ErrMalformed, l)
			}
		}
	}
	return nil
}
