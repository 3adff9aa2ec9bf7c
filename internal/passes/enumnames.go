package passes

import (
	"strings"
	"unicode"

	"deobf/internal/jvm"
	"deobf/internal/transform"
	"deobf/internal/value"
)

// EnumNames restores the field names of enum constants from the name
// string each constant is constructed with. It only records mappings.
type EnumNames struct{}

func (*EnumNames) Name() string { return EnumNamesName }

func (*EnumNames) Description() string {
	return "rename enum constant fields after their declared names"
}

func (*EnumNames) TransformClass(ctx *transform.Context, cls *jvm.Class) (bool, error) {
	if cls.Access&jvm.AccEnum == 0 {
		return false, nil
	}
	m := cls.Method(clinit, "()V")
	if m == nil || m.Code == nil {
		return false, nil
	}
	fm, err := analyzeCurrent(ctx, cls, m)
	if err != nil {
		return false, err
	}
	h := ctx.Hierarchy()
	self := jvm.ObjectDesc(cls.Name)
	taken := make(map[string]bool, len(cls.Fields))
	for _, f := range cls.Fields {
		taken[f.Name] = true
	}
	insns := m.Code.Insns
	for i, in := range insns {
		if in.Op != jvm.PUTSTATIC || in.Owner != cls.Name || in.Desc != self || cls.Field(in.Name, in.Desc) == nil {
			continue
		}
		j := prevReal(insns, i)
		if j < 0 {
			continue
		}
		init := insns[j]
		if init.Op != jvm.INVOKESPECIAL || init.Name != "<init>" || !strings.HasPrefix(init.Desc, "(Ljava/lang/String;I") {
			continue
		}
		if init.Owner != cls.Name {
			if ok, _ := h.IsAssignable(cls.Name, init.Owner); !ok {
				continue
			}
		}
		if !fm.Reachable(j) {
			continue
		}
		args, _, err := jvm.ParseMethodDesc(init.Desc)
		if err != nil {
			continue
		}
		name, ok := fm.At(j).Peek(len(args) - 1)
		if !ok || name.Kind() != value.String || !name.IsKnown() {
			continue
		}
		s := name.Str()
		if s == in.Name || taken[s] || !validIdentifier(s) {
			continue
		}
		taken[s] = true
		ctx.Mappings().AddField(cls.Name, in.Name, in.Desc, s)
	}
	return false, nil
}

var javaKeywords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true,
	"case": true, "catch": true, "char": true, "class": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extends": true, "final": true, "finally": true, "float": true,
	"for": true, "goto": true, "if": true, "implements": true, "import": true,
	"instanceof": true, "int": true, "interface": true, "long": true, "native": true,
	"new": true, "package": true, "private": true, "protected": true, "public": true,
	"return": true, "short": true, "static": true, "strictfp": true, "super": true,
	"switch": true, "synchronized": true, "this": true, "throw": true, "throws": true,
	"transient": true, "try": true, "void": true, "volatile": true, "while": true,
	"true": true, "false": true, "null": true, "_": true,
}

func validIdentifier(s string) bool {
	if s == "" || javaKeywords[s] {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
