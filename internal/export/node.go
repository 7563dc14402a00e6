// Package export describes the scene data handed over by the authoring tool:
// export nodes, their member objects and node types.
package export

import (
	"strings"

	"github.com/Faultbox/cryexport/pkg/math"
)

// MarkerPrefix marks a group as an exported engine object.
const MarkerPrefix = "CryExportNode_"

// NodeType is the compiled asset kind of an export node.
type NodeType string

const (
	NodeTypeCGF   NodeType = "cgf"   // static geometry
	NodeTypeCGA   NodeType = "cga"   // animated geometry
	NodeTypeCHR   NodeType = "chr"   // character
	NodeTypeSkin  NodeType = "skin"  // skinned attachment
	NodeTypeANM   NodeType = "anm"   // animation for cga
	NodeTypeICAF  NodeType = "i_caf" // animation for chr
	NodeTypeOther NodeType = "other"
)

// Recompilable reports whether the compiler runs a second pass for this type.
func (t NodeType) Recompilable() bool {
	switch t {
	case NodeTypeCGF, NodeTypeCGA, NodeTypeCHR, NodeTypeSkin:
		return true
	default:
		return false
	}
}

// ParseNodeType maps a type tag to a NodeType; unknown tags become NodeTypeOther.
func ParseNodeType(s string) NodeType {
	switch t := NodeType(strings.ToLower(strings.TrimSpace(s))); t {
	case NodeTypeCGF, NodeTypeCGA, NodeTypeCHR, NodeTypeSkin, NodeTypeANM, NodeTypeICAF:
		return t
	default:
		return NodeTypeOther
	}
}

// NodeTypeFromName derives the type from the text after the last '.' of a
// node name, e.g. "CryExportNode_door.cga".
func NodeTypeFromName(name string) NodeType {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return NodeTypeOther
	}
	return ParseNodeType(name[i+1:])
}

// Object is one scene object belonging to an export node.
type Object struct {
	Name          string
	Location      math.Vec3
	DeltaRotation math.Quat
}

// Node is a named group of objects exported as one asset.
type Node struct {
	Name    string
	Type    NodeType
	Objects []Object
}

// IsMarked reports whether the node name carries MarkerPrefix.
func (n Node) IsMarked() bool {
	return strings.HasPrefix(n.Name, MarkerPrefix)
}

// DisplayName returns the node name without MarkerPrefix.
func (n Node) DisplayName() string {
	return strings.TrimPrefix(n.Name, MarkerPrefix)
}

// Placement returns the location and rotation used when placing the node in
// a level. Only a single-object node takes its object's transform; empty and
// multi-object groups are placed at the origin without rotation.
func (n Node) Placement() (math.Vec3, math.Quat) {
	if len(n.Objects) != 1 {
		return math.Vec3{}, math.QuatIdentity()
	}
	return n.Objects[0].Location, n.Objects[0].DeltaRotation
}
