package export

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/cryexport/pkg/math"
)

// manifestFile is the YAML layout of a scene manifest.
type manifestFile struct {
	Nodes []manifestNode `yaml:"nodes"`
}

type manifestNode struct {
	Name    string           `yaml:"name"`
	Type    string           `yaml:"type"`
	Objects []manifestObject `yaml:"objects"`
}

type manifestObject struct {
	Name          string    `yaml:"name"`
	Location      []float32 `yaml:"location"`       // x, y, z
	DeltaRotation []float32 `yaml:"delta_rotation"` // w, x, y, z
}

// LoadManifest reads export nodes from a YAML scene manifest.
func LoadManifest(path string) ([]Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	nodes, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return nodes, nil
}

// ParseManifest decodes export nodes from YAML. A node without a type takes
// it from its name; an object without a rotation is unrotated.
func ParseManifest(data []byte) ([]Node, error) {
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(mf.Nodes))
	for i, mn := range mf.Nodes {
		if strings.TrimSpace(mn.Name) == "" {
			return nil, fmt.Errorf("node %d: name is required", i)
		}

		node := Node{
			Name: mn.Name,
			Type: NodeTypeFromName(mn.Name),
		}
		if mn.Type != "" {
			node.Type = ParseNodeType(mn.Type)
		}

		for j, mo := range mn.Objects {
			if len(mo.Location) != 0 && len(mo.Location) != 3 {
				return nil, fmt.Errorf("node %q object %d: location needs 3 components, got %d", mn.Name, j, len(mo.Location))
			}
			if len(mo.DeltaRotation) != 0 && len(mo.DeltaRotation) != 4 {
				return nil, fmt.Errorf("node %q object %d: delta_rotation needs 4 components, got %d", mn.Name, j, len(mo.DeltaRotation))
			}
			node.Objects = append(node.Objects, Object{
				Name:          mo.Name,
				Location:      math.Vec3FromSlice(mo.Location),
				DeltaRotation: math.QuatFromSlice(mo.DeltaRotation),
			})
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
