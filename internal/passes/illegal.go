package passes

import (
	"strings"

	"deobf/internal/jvm"
	"deobf/internal/transform"
)

// IllegalAttributes strips attributes that contradict the declarations they
// annotate: malformed or mismatching generic signatures, varargs flags on
// methods without a trailing array, parameter annotations for parameters
// that do not exist, and annotations of non-class types.
type IllegalAttributes struct{}

func (*IllegalAttributes) Name() string { return IllegalAttributesName }

func (*IllegalAttributes) Description() string {
	return "strip signatures, flags and annotations that contradict their declaration"
}

func (*IllegalAttributes) TransformClass(_ *transform.Context, cls *jvm.Class) (bool, error) {
	changed := false
	if cls.Signature != "" && parseClassSignature(cls.Signature) != nil {
		cls.Signature = ""
		changed = true
	}
	changed = cleanAnnotations(&cls.Annotations) || changed
	for _, f := range cls.Fields {
		if f.Signature != "" && !fieldSignatureOK(f) {
			f.Signature = ""
			changed = true
		}
		changed = cleanAnnotations(&f.Annotations) || changed
	}
	for _, m := range cls.Methods {
		changed = cleanMethod(m) || changed
	}
	return changed, nil
}

func fieldSignatureOK(f *jvm.Field) bool {
	if f.Desc == "" || (f.Desc[0] != 'L' && f.Desc[0] != '[') {
		return false
	}
	return parseFieldSignature(f.Signature) == nil
}

func cleanMethod(m *jvm.Method) bool {
	changed := false
	args, ret, err := jvm.ParseMethodDesc(m.Desc)
	if err != nil {
		return false
	}
	if m.Signature != "" && !methodSignatureOK(m.Signature, args, ret) {
		m.Signature = ""
		changed = true
	}
	if m.Access&jvm.AccVarargs != 0 && (len(args) == 0 || args[len(args)-1].Sort != jvm.SortArray) {
		m.Access &^= jvm.AccVarargs
		changed = true
	}
	if len(m.ParameterAnnotations) > len(args) {
		m.ParameterAnnotations = nil
		changed = true
	}
	changed = cleanAnnotations(&m.Annotations) || changed
	for i := range m.ParameterAnnotations {
		changed = cleanAnnotations(&m.ParameterAnnotations[i]) || changed
	}
	return changed
}

// methodSignatureOK checks a method signature against its descriptor. The
// descriptor may carry leading synthetic parameters the signature omits, so
// parameters are compared from the end.
func methodSignatureOK(sig string, args []jvm.Type, ret jvm.Type) bool {
	params, sret, err := parseMethodSignature(sig)
	if err != nil || len(params) > len(args) {
		return false
	}
	off := len(args) - len(params)
	for i, p := range params {
		if p != descSort(args[off+i]) {
			return false
		}
	}
	if ret.Sort == jvm.SortVoid {
		return sret == 'V'
	}
	return sret == descSort(ret)
}

// descSort reduces a type to the sort used for parsed signatures.
func descSort(t jvm.Type) byte {
	if t.IsPrimitive() {
		return t.Desc[0]
	}
	return 'L'
}

// cleanAnnotations drops annotations whose type is not a class.
func cleanAnnotations(as *[]jvm.Annotation) bool {
	var out []jvm.Annotation
	for _, a := range *as {
		if len(a.Desc) > 2 && strings.HasPrefix(a.Desc, "L") && strings.HasSuffix(a.Desc, ";") {
			out = append(out, a)
		}
	}
	if len(out) == len(*as) {
		return false
	}
	*as = out
	return true
}
