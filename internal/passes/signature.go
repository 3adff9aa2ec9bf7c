package passes

import (
	"errors"
	"fmt"
	"strings"
)

var errSignature = errors.New("malformed signature")

// sigParser reads generic signatures. Parsed types are reduced to their
// descriptor sort: the base type character, or 'L' for any reference.
type sigParser struct {
	s string
	i int
}

func (p *sigParser) fail(what string) error {
	return fmt.Errorf("%w: %q: %s at %d", errSignature, p.s, what, p.i)
}

func (p *sigParser) peek() byte {
	if p.i < len(p.s) {
		return p.s[p.i]
	}
	return 0
}

func (p *sigParser) eat(c byte) bool {
	if p.peek() == c {
		p.i++
		return true
	}
	return false
}

func (p *sigParser) expect(c byte) error {
	if !p.eat(c) {
		return p.fail(fmt.Sprintf("expected %q", c))
	}
	return nil
}

// identifier reads a name. slash allows package separators.
func (p *sigParser) identifier(slash bool) error {
	start := p.i
	for p.i < len(p.s) {
		c := p.s[p.i]
		if c == '.' || c == ';' || c == '[' || c == '<' || c == '>' || c == ':' || (c == '/' && !slash) {
			break
		}
		p.i++
	}
	if p.i == start || p.s[start] == '/' || p.s[p.i-1] == '/' || strings.Contains(p.s[start:p.i], "//") {
		return p.fail("bad identifier")
	}
	return nil
}

func (p *sigParser) typeParameters() error {
	if !p.eat('<') {
		return nil
	}
	for {
		if err := p.identifier(false); err != nil {
			return err
		}
		// class bound, possibly empty
		if err := p.expect(':'); err != nil {
			return err
		}
		if c := p.peek(); c == 'L' || c == 'T' || c == '[' {
			if err := p.reference(); err != nil {
				return err
			}
		}
		for p.eat(':') {
			if err := p.reference(); err != nil {
				return err
			}
		}
		if p.eat('>') {
			return nil
		}
	}
}

func (p *sigParser) reference() error {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		p.i++
		if err := p.identifier(false); err != nil {
			return err
		}
		return p.expect(';')
	case '[':
		p.i++
		_, err := p.javaType()
		return err
	}
	return p.fail("expected reference type")
}

func (p *sigParser) classType() error {
	if err := p.expect('L'); err != nil {
		return err
	}
	if err := p.identifier(true); err != nil {
		return err
	}
	for {
		if err := p.typeArguments(); err != nil {
			return err
		}
		if !p.eat('.') {
			break
		}
		if err := p.identifier(false); err != nil {
			return err
		}
	}
	return p.expect(';')
}

func (p *sigParser) typeArguments() error {
	if !p.eat('<') {
		return nil
	}
	for n := 0; ; n++ {
		if p.eat('>') {
			if n == 0 {
				return p.fail("empty type arguments")
			}
			return nil
		}
		if p.eat('*') {
			continue
		}
		if !p.eat('+') {
			p.eat('-')
		}
		if err := p.reference(); err != nil {
			return err
		}
	}
}

func (p *sigParser) javaType() (byte, error) {
	switch c := p.peek(); c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		p.i++
		return c, nil
	}
	return 'L', p.reference()
}

func (p *sigParser) done() error {
	if p.i != len(p.s) {
		return p.fail("trailing characters")
	}
	return nil
}

func parseClassSignature(s string) error {
	p := &sigParser{s: s}
	if err := p.typeParameters(); err != nil {
		return err
	}
	if err := p.classType(); err != nil {
		return err
	}
	for p.peek() == 'L' {
		if err := p.classType(); err != nil {
			return err
		}
	}
	return p.done()
}

// parseMethodSignature returns the sorts of the parameters and of the
// result, 'V' for void.
func parseMethodSignature(s string) (params []byte, ret byte, err error) {
	p := &sigParser{s: s}
	if err := p.typeParameters(); err != nil {
		return nil, 0, err
	}
	if err := p.expect('('); err != nil {
		return nil, 0, err
	}
	for !p.eat(')') {
		if p.i >= len(p.s) {
			return nil, 0, p.fail("unterminated parameters")
		}
		t, err := p.javaType()
		if err != nil {
			return nil, 0, err
		}
		params = append(params, t)
	}
	if p.eat('V') {
		ret = 'V'
	} else if ret, err = p.javaType(); err != nil {
		return nil, 0, err
	}
	for p.eat('^') {
		if c := p.peek(); c != 'L' && c != 'T' {
			return nil, 0, p.fail("bad throws")
		}
		if err := p.reference(); err != nil {
			return nil, 0, err
		}
	}
	return params, ret, p.done()
}

func parseFieldSignature(s string) error {
	p := &sigParser{s: s}
	if err := p.reference(); err != nil {
		return err
	}
	return p.done()
}
