package dwarfinfo

import (
	"debug/dwarf"
	"fmt"
)

// TypeInfo is one resolved type-graph node (spec §4.2 "type graph").
type TypeInfo struct {
	Name     string
	Kind     string // "base", "pointer", "struct", "array", "typedef", "enum"
	ByteSize int64
	Offset   dwarf.Offset

	// Kind == "pointer"/"typedef": the referenced type.
	ElemType dwarf.Offset

	// Kind == "struct": members in declaration order.
	Members []Member

	// Kind == "array": element type and bound (-1 when unknown/flexible).
	ArrayElem  dwarf.Offset
	ArrayCount int64

	// Kind == "enum": name -> constant value.
	Enumerators map[string]int64
}

// Member is one field of a struct/union/class type.
type Member struct {
	Name       string
	TypeOffset dwarf.Offset
	ByteOffset int64
}

// ResolveType decodes the DIE at off into a TypeInfo, following DWARF's type
// DIE shapes (base_type, pointer_type, structure_type, array_type, typedef,
// enumeration_type).
func (r *Reader) ResolveType(off dwarf.Offset) (*TypeInfo, error) {
	reader := r.data.Reader()
	reader.Seek(off)
	die, err := reader.Next()
	if err != nil || die == nil {
		return nil, fmt.Errorf("dwarfinfo: no DIE at offset %v", off)
	}

	ti := &TypeInfo{Offset: off}
	if name, ok := die.Val(dwarf.AttrName).(string); ok {
		ti.Name = name
	}
	if size, ok := die.Val(dwarf.AttrByteSize).(int64); ok {
		ti.ByteSize = size
	}

	switch die.Tag {
	case dwarf.TagBaseType:
		ti.Kind = "base"
	case dwarf.TagPointerType:
		ti.Kind = "pointer"
		if ref, ok := die.Val(dwarf.AttrType).(dwarf.Offset); ok {
			ti.ElemType = ref
		}
	case dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType:
		ti.Kind = "typedef"
		if ref, ok := die.Val(dwarf.AttrType).(dwarf.Offset); ok {
			ti.ElemType = ref
		}
	case dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagClassType:
		ti.Kind = "struct"
		ti.Members = r.readMembers(reader)
	case dwarf.TagArrayType:
		ti.Kind = "array"
		ti.ArrayCount = -1
		if ref, ok := die.Val(dwarf.AttrType).(dwarf.Offset); ok {
			ti.ArrayElem = ref
		}
		ti.ArrayCount = r.readArrayCount(reader)
	case dwarf.TagEnumerationType:
		ti.Kind = "enum"
		ti.Enumerators = r.readEnumerators(reader)
	default:
		ti.Kind = "unknown"
	}
	return ti, nil
}

// readMembers consumes the children of a struct/union/class DIE just
// visited by reader, collecting each TagMember's name/type/offset.
func (r *Reader) readMembers(reader *dwarf.Reader) []Member {
	var members []Member
	for {
		child, err := reader.Next()
		if err != nil || child == nil {
			break
		}
		if child.Tag == 0 {
			break // end of children
		}
		if child.Tag == dwarf.TagMember {
			m := Member{}
			if name, ok := child.Val(dwarf.AttrName).(string); ok {
				m.Name = name
			}
			if ref, ok := child.Val(dwarf.AttrType).(dwarf.Offset); ok {
				m.TypeOffset = ref
			}
			if off, ok := child.Val(dwarf.AttrDataMemberLoc).(int64); ok {
				m.ByteOffset = off
			}
			members = append(members, m)
		}
		if !child.Children {
			continue
		}
		reader.SkipChildren()
	}
	return members
}

// readArrayCount reads the first TagSubrangeType child's upper_bound/count.
func (r *Reader) readArrayCount(reader *dwarf.Reader) int64 {
	for {
		child, err := reader.Next()
		if err != nil || child == nil || child.Tag == 0 {
			break
		}
		if child.Tag == dwarf.TagSubrangeType {
			if count, ok := child.Val(dwarf.AttrCount).(int64); ok {
				return count
			}
			if upper, ok := child.Val(dwarf.AttrUpperBound).(int64); ok {
				return upper + 1
			}
		}
	}
	return -1
}

// readEnumerators reads every TagEnumerator child's name/const_value.
func (r *Reader) readEnumerators(reader *dwarf.Reader) map[string]int64 {
	out := make(map[string]int64)
	for {
		child, err := reader.Next()
		if err != nil || child == nil || child.Tag == 0 {
			break
		}
		if child.Tag == dwarf.TagEnumerator {
			name, _ := child.Val(dwarf.AttrName).(string)
			val, _ := child.Val(dwarf.AttrConstValue).(int64)
			out[name] = val
		}
	}
	return out
}

// VariablesInScope returns the parameter/local DIEs nested directly under
// the subprogram DIE at fn.DieOffset whose lexical-block ranges (if any)
// cover pc.
func (r *Reader) VariablesInScope(fn *Function, pc uint64) ([]Variable, error) {
	reader := r.data.Reader()
	reader.Seek(fn.DieOffset)
	entry, err := reader.Next()
	if err != nil || entry == nil {
		return nil, fmt.Errorf("dwarfinfo: no DIE at function offset")
	}
	return r.walkScope(reader, pc)
}

// walkScope recurses into lexical blocks whose PC range covers pc, and
// collects DW_TAG_formal_parameter / DW_TAG_variable children as it goes.
func (r *Reader) walkScope(reader *dwarf.Reader, pc uint64) ([]Variable, error) {
	var vars []Variable
	for {
		child, err := reader.Next()
		if err != nil {
			return vars, err
		}
		if child == nil || child.Tag == 0 {
			break
		}
		switch child.Tag {
		case dwarf.TagFormalParameter, dwarf.TagVariable:
			v := Variable{IsParam: child.Tag == dwarf.TagFormalParameter}
			if name, ok := child.Val(dwarf.AttrName).(string); ok {
				v.Name = name
			}
			if ref, ok := child.Val(dwarf.AttrType).(dwarf.Offset); ok {
				v.TypeOffset = ref
			}
			if loc, ok := child.Val(dwarf.AttrLocation).([]byte); ok {
				v.LocExpr = loc
			}
			if v.Name != "" {
				vars = append(vars, v)
			}
			if child.Children {
				reader.SkipChildren()
			}
		case dwarf.TagLexDwarfBlock:
			low, lowOK := child.Val(dwarf.AttrLowpc).(uint64)
			high := highpc(child, low)
			inRange := !lowOK || (pc >= low && pc < high)
			if inRange && child.Children {
				nested, _ := r.walkScope(reader, pc)
				vars = append(vars, nested...)
			} else if child.Children {
				reader.SkipChildren()
			}
		default:
			if child.Children {
				reader.SkipChildren()
			}
		}
	}
	return vars, nil
}
