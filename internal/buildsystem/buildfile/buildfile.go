// Package buildfile loads the build description document: a YAML mapping
// with ordered top-level sections describing the client, tools, targets,
// nodes and commands of a build.
package buildfile

// Node is a named file (or virtual placeholder) referenced by commands and
// targets.
type Node interface {
	Name() string
	ConfigureAttribute(name, value string) error
	ConfigureAttributeList(name string, values []string) error
}

// Target is a named group of root nodes.
type Target struct {
	Name  string
	Nodes []Node
}

// Command turns input nodes into output nodes. Concrete behaviour lives in
// the build system layer; the loader only configures it.
type Command interface {
	Name() string
	ConfigureDescription(description string)
	ConfigureInputs(nodes []Node)
	ConfigureOutputs(nodes []Node)
	ConfigureAttribute(name, value string) error
	ConfigureAttributeList(name string, values []string) error
}

// Tool instantiates and configures commands of one kind.
type Tool interface {
	Name() string
	ConfigureAttribute(name, value string) error
	ConfigureAttributeList(name string, values []string) error
	CreateCommand(name string) Command
}

// Delegate supplies the environment the loader binds the document to.
type Delegate interface {
	// ConfigureClient receives the client section; returning false fails
	// the load.
	ConfigureClient(name, version string, properties map[string]string) bool

	// LookupTool resolves a tool by name.
	LookupTool(name string) (Tool, error)

	// CreateNode constructs a node. isImplicit marks nodes created from a
	// reference rather than a declaration in the nodes section.
	CreateNode(name string, isImplicit bool) Node

	// Error reports a diagnostic at a source position.
	Error(path string, line, column int, message string)
}
