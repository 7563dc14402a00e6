// Package layer generates the editor layer file that places every exported
// node in a level as a BasicEntity.
package layer

import (
	"io"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/Faultbox/cryexport/internal/export"
	"github.com/Faultbox/cryexport/internal/workspace"
)

// Name is the layer every exported object is placed in.
const Name = "ExportedLayer"

// Extension is the file extension of layer files.
const Extension = ".lyr"

// attr is one XML attribute. Attribute order is significant to the editor,
// so element attributes are kept as ordered slices.
type attr struct {
	key, value string
}

var layerAttrs = []attr{
	{"External", "0"},
	{"Exportable", "1"},
	{"ExportLayerPak", "1"},
	{"DefaultLoaded", "0"},
	{"HavePhysics", "1"},
	{"Expanded", "0"},
	{"IsDefaultColor", "1"},
}

var entityAttrs = []attr{
	{"EntityClass", "BasicEntity"},
	{"FloorNumber", "-1"},
	{"RenderNearest", "0"},
	{"NoStaticDecals", "0"},
	{"CreatedThroughPool", "0"},
	{"MatLayersMask", "0"},
	{"OutdoorOnly", "0"},
	{"CastShadow", "1"},
	{"MotionBlurMultiplier", "1"},
	{"LodRatio", "100"},
	{"ViewDistRatio", "100"},
	{"HiddenInGame", "0"},
}

var propertyAttrs = []attr{
	{"bCanTriggerAreas", "0"},
	{"bExcludeCover", "0"},
	{"DmgFactorWhenCollidingAI", "1"},
	{"esFaction", ""},
	{"bHeavyObject", "0"},
	{"bInteractLargeObject", "0"},
	{"bMissionCritical", "0"},
	{"bPickable", "0"},
	{"soclasses_SmartObjectClass", ""},
	{"bUsable", "0"},
	{"UseMessage", "0"},
}

var healthAttrs = []attr{
	{"bInvulnerable", "1"},
	{"MaxHealth", "500"},
	{"bOnlyEnemyFire", "1"},
}

var interestAttrs = []attr{
	{"soaction_Action", ""},
	{"bInteresting", "0"},
	{"InterestLevel", "1"},
	{"Pause", "15"},
	{"Radius", "20"},
	{"bShared", "0"},
}

var offsetAttrs = []attr{
	{"x", "0"},
	{"y", "0"},
	{"z", "0"},
}

// NewGUID returns a random GUID in braces, e.g. "{0f8fad5b-d9cb-469f-a165-70867728950e}".
func NewGUID() string {
	return "{" + uuid.NewString() + "}"
}

// Builder builds layer documents.
type Builder struct {
	// GUID returns a fresh identifier. Defaults to NewGUID.
	GUID func() string
}

// Build builds the layer for the marked nodes, in order, with fresh GUIDs.
func Build(nodes []export.Node) *Document {
	return (&Builder{}).Build(nodes)
}

// Build builds the layer for the marked nodes, in order. Unmarked nodes
// are skipped.
func (b *Builder) Build(nodes []export.Node) *Document {
	guid := b.GUID
	if guid == nil {
		guid = NewGUID
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)

	layerGUID := guid()
	layer := doc.CreateElement("ObjectLayer").CreateElement("Layer")
	setAttrs(layer,
		attr{"name", Name},
		attr{"GUID", layerGUID},
		attr{"FullName", Name},
	)
	setAttrs(layer, layerAttrs...)

	objects := layer.CreateElement("LayerObjects")
	count := 0
	for _, node := range nodes {
		if !node.IsMarked() {
			continue
		}
		addObject(objects, node, guid(), layerGUID)
		count++
	}

	doc.Indent(2)
	return &Document{tree: doc, guid: layerGUID, objects: count}
}

func addObject(parent *etree.Element, node export.Node, id, layerGUID string) {
	name := node.DisplayName()
	pos, rot := node.Placement()

	obj := parent.CreateElement("Object")
	setAttrs(obj,
		attr{"name", name},
		attr{"Type", "Entity"},
		attr{"Id", id},
		attr{"LayerGUID", layerGUID},
		attr{"Layer", Name},
		attr{"Pos", pos.String()},
		attr{"Rotate", rot.String()},
	)
	setAttrs(obj, entityAttrs...)

	props := obj.CreateElement("Properties")
	props.CreateAttr("object_Model", "/Objects/"+name+".cgf")
	setAttrs(props, propertyAttrs...)
	setAttrs(props.CreateElement("Health"), healthAttrs...)
	interest := props.CreateElement("Interest")
	setAttrs(interest, interestAttrs...)
	setAttrs(interest.CreateElement("vOffset"), offsetAttrs...)
}

func setAttrs(el *etree.Element, attrs ...attr) {
	for _, a := range attrs {
		el.CreateAttr(a.key, a.value)
	}
}

// Document is a generated layer file.
type Document struct {
	tree    *etree.Document
	guid    string
	objects int
}

// LayerGUID returns the GUID shared by the layer and all its objects.
func (d *Document) LayerGUID() string {
	return d.guid
}

// ObjectCount returns how many objects the layer places.
func (d *Document) ObjectCount() int {
	return d.objects
}

// WriteTo writes the XML document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.tree.WriteTo(w)
}

// Bytes returns the XML document.
func (d *Document) Bytes() ([]byte, error) {
	return d.tree.WriteToBytes()
}

// WriteFile writes the document to path, replacing any existing file.
func (d *Document) WriteFile(path string) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	return workspace.WriteFile(path, data)
}
