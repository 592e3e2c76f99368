package buildsystem

import (
	"strings"

	"go.trai.ch/anvil/internal/adapters/fs"
	"go.trai.ch/anvil/internal/buildsystem/buildfile"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// BuildNode is a file participating in the build. Names wrapped in angle
// brackets ("<linked>") denote virtual nodes with no filesystem presence.
type BuildNode struct {
	name    string
	virtual bool

	// producers lists the commands that declare this node as an output.
	producers []Command
}

var _ buildfile.Node = (*BuildNode)(nil)

// NewBuildNode creates a node.
func NewBuildNode(name string) *BuildNode {
	return &BuildNode{
		name:    name,
		virtual: strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">"),
	}
}

// Name returns the node name.
func (n *BuildNode) Name() string { return n.name }

// IsVirtual reports whether the node has no filesystem presence.
func (n *BuildNode) IsVirtual() bool { return n.virtual }

// Producers returns the commands producing this node.
func (n *BuildNode) Producers() []Command { return n.producers }

func (n *BuildNode) addProducer(c Command) {
	n.producers = append(n.producers, c)
}

// FileInfo stamps the node's file. Virtual nodes always stamp as missing.
func (n *BuildNode) FileInfo() domain.FileInfo {
	if n.virtual {
		return domain.FileInfo{}
	}
	return fs.Stamp(n.name)
}

// ConfigureAttribute rejects unknown node attributes.
func (n *BuildNode) ConfigureAttribute(name, _ string) error {
	return zerr.With(zerr.New("unexpected node attribute"), "attribute", name)
}

// ConfigureAttributeList rejects unknown node attributes.
func (n *BuildNode) ConfigureAttributeList(name string, _ []string) error {
	return zerr.With(zerr.New("unexpected node attribute"), "attribute", name)
}
