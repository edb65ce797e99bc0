package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pgavlin/reftable/exec"
)

// parseValue parses an element of the given type. GC references to named objects are looked up in objects and are
// returned without being retained.
func parseValue(s string, et exec.ElementType, objects map[string]exec.GcRef) (exec.TableElement, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nullElement(et), nil
	}

	switch et {
	case exec.ElementTypeFunc:
		if s == "uninit" {
			return exec.UninitFuncElement(), nil
		}
		addr, err := strconv.ParseUint(s, 0, 64)
		if err != nil || uint64(uintptr(addr)) != addr || addr&1 != 0 {
			return exec.TableElement{}, fmt.Errorf("invalid function reference %q: must be an even address", s)
		}
		return exec.FuncRefElement(exec.FuncRef(addr)), nil
	case exec.ElementTypeGcRef:
		switch {
		case strings.HasPrefix(s, "i31:"):
			v, err := strconv.ParseUint(s[len("i31:"):], 0, 31)
			if err != nil {
				return exec.TableElement{}, fmt.Errorf("invalid i31 reference %q: %w", s, err)
			}
			return exec.GcRefElement(exec.NewI31Ref(uint32(v))), nil
		case strings.HasPrefix(s, "obj:"):
			name := s[len("obj:"):]
			r, ok := objects[name]
			if !ok {
				return exec.TableElement{}, fmt.Errorf("unknown object %q", name)
			}
			return exec.GcRefElement(r), nil
		default:
			return exec.TableElement{}, fmt.Errorf("invalid GC reference %q", s)
		}
	default:
		addr, revision, _ := strings.Cut(s, "@")
		a, err := strconv.ParseUint(addr, 0, 64)
		if err != nil || a == 0 || uint64(uintptr(a)) != a {
			return exec.TableElement{}, fmt.Errorf("invalid continuation reference %q", s)
		}
		var r uint64
		if revision != "" {
			if r, err = strconv.ParseUint(revision, 10, 64); err != nil {
				return exec.TableElement{}, fmt.Errorf("invalid continuation revision %q", s)
			}
		}
		return exec.ContRefElement(exec.ContRef{Contref: uintptr(a), Revision: r}), nil
	}
}

func nullElement(et exec.ElementType) exec.TableElement {
	switch et {
	case exec.ElementTypeGcRef:
		return exec.GcRefElement(0)
	case exec.ElementTypeCont:
		return exec.ContRefElement(exec.ContRef{})
	default:
		return exec.FuncRefElement(0)
	}
}

// formatElement formats an element in the syntax accepted by parseValue. names maps heap references to the names
// of their objects.
func formatElement(e exec.TableElement, names map[exec.GcRef]string) string {
	if e.IsUninit() {
		return "uninit"
	}
	if f, ok := e.FuncRef(); ok {
		if f == 0 {
			return "null"
		}
		return fmt.Sprintf("%#x", uintptr(f))
	}
	if r, ok := e.GcRef(); ok {
		switch {
		case r == 0:
			return "null"
		case r.IsI31():
			return fmt.Sprintf("i31:%d", r.I31Value())
		default:
			if name, ok := names[r]; ok {
				return "obj:" + name
			}
			return fmt.Sprintf("gcref:%#x", uint32(r))
		}
	}
	c, _ := e.ContRef()
	if c.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%#x@%d", c.Contref, c.Revision)
}

// refType parses the kind of a new table.
func refType(kind string) (exec.RefType, error) {
	switch kind {
	case "func", "funcref":
		return exec.RefTypeFuncref, nil
	case "extern", "externref":
		return exec.RefTypeExternref, nil
	case "any", "anyref":
		return exec.RefTypeAnyref, nil
	case "cont", "contref":
		return exec.RefTypeContref, nil
	default:
		return 0, fmt.Errorf("unknown table kind %q", kind)
	}
}
