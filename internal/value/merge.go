package value

// Merge joins two values reaching the same program point.
//
// Equal values merge to themselves. Numeric values of the same kind that
// disagree become unknown of that kind; values of the same width but
// different numeric kinds widen to the wider unknown kind; anything else
// that mixes widths or mixes primitives with references is Uninitialized.
// References join by type: null contributes only nullability, distinct
// known strings lose their text, and unrelated types go to
// java/lang/Object. Merge is commutative, associative and idempotent.
func Merge(a, b Value) Value {
	if Equal(a, b) {
		return a
	}
	if a.kind == Uninitialized || b.kind == Uninitialized {
		return Top()
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.Size() != b.Size() {
			return Top()
		}
		return unknownOfKind(Widest(a.kind, b.kind))
	}
	if a.IsNumeric() || b.IsNumeric() {
		return Top()
	}
	return mergeRefs(a, b)
}

func mergeRefs(a, b Value) Value {
	if a.kind == Null {
		return nullable(b)
	}
	if b.kind == Null {
		return nullable(a)
	}
	nonNull := a.nonNull && b.nonNull
	if a.kind == Array && b.kind == Array && a.desc == b.desc {
		out := Value{kind: Array, desc: a.desc, length: -1, nonNull: nonNull}
		if a.ref == b.ref {
			out.ref = a.ref
		}
		if a.length == b.length {
			out.length = a.length
			if a.elems != nil && b.elems != nil {
				out.elems = make([]Value, len(a.elems))
				for i := range a.elems {
					out.elems[i] = Merge(a.elems[i], b.elems[i])
				}
				out.known = true
			}
		}
		return out
	}
	desc := ObjectDesc
	if a.Desc() == b.Desc() {
		desc = a.Desc()
	}
	out := UnknownObject(desc)
	out.nonNull = nonNull
	return out
}

// nullable widens v so that it also admits null. A known string loses its
// text because the slot may now hold null.
func nullable(v Value) Value {
	switch v.kind {
	case String:
		return UnknownObject(StringDesc)
	case Array:
		out := UnknownArray(v.desc)
		return out
	}
	out := v
	out.nonNull = false
	return out
}
