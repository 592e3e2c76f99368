package buildfile

import (
	"os"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// BuildFile owns the objects loaded from one build description.
type BuildFile struct {
	path     string
	delegate Delegate

	nodes    map[string]Node
	targets  map[string]*Target
	commands map[string]Command
	tools    map[string]Tool

	// commandOrder preserves declaration order for deterministic walks.
	commandOrder []string

	numErrors int
}

// New creates a BuildFile bound to the description at path.
func New(delegate Delegate, path string) *BuildFile {
	return &BuildFile{
		path:     path,
		delegate: delegate,
		nodes:    make(map[string]Node),
		targets:  make(map[string]*Target),
		commands: make(map[string]Command),
		tools:    make(map[string]Tool),
	}
}

// Target returns a declared target by name.
func (f *BuildFile) Target(name string) (*Target, bool) {
	t, ok := f.targets[name]
	return t, ok
}

// Command returns a declared command by name.
func (f *BuildFile) Command(name string) (Command, bool) {
	c, ok := f.commands[name]
	return c, ok
}

// Commands yields the commands in declaration order.
func (f *BuildFile) Commands() []Command {
	out := make([]Command, 0, len(f.commandOrder))
	for _, name := range f.commandOrder {
		out = append(out, f.commands[name])
	}
	return out
}

// Node returns a node by name, if it was declared or referenced.
func (f *BuildFile) Node(name string) (Node, bool) {
	n, ok := f.nodes[name]
	return n, ok
}

// NumErrors returns the diagnostic count from the last load.
func (f *BuildFile) NumErrors() int {
	return f.numErrors
}

// Load reads and parses the description file. Diagnostics are reported
// through the delegate; Load fails if any were produced.
func (f *BuildFile) Load() error {
	data, err := os.ReadFile(f.path) //nolint:gosec // path is provided by the user
	if err != nil {
		return zerr.Wrap(err, "failed to read build description")
	}
	return f.Parse(data)
}

// Parse parses an in-memory description document.
func (f *BuildFile) Parse(data []byte) error {
	f.numErrors = 0

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return zerr.Wrap(err, "failed to parse build description")
	}
	if len(doc.Content) == 0 {
		f.errorAt(&doc, "empty build description")
		return domain.ErrLoadFailed
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		f.errorAt(root, "expected mapping at top level")
		return domain.ErrLoadFailed
	}

	f.parseRoot(root)

	if f.numErrors != 0 {
		return zerr.With(domain.ErrLoadFailed, "errors", f.numErrors)
	}
	return nil
}

func (f *BuildFile) errorAt(node *yaml.Node, message string) {
	f.numErrors++
	line, col := 0, 0
	if node != nil {
		line, col = node.Line, node.Column
	}
	f.delegate.Error(f.path, line, col, message)
}

// mappingEntries pairs up a mapping node's key/value children.
func mappingEntries(node *yaml.Node) [][2]*yaml.Node {
	entries := make([][2]*yaml.Node, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		entries = append(entries, [2]*yaml.Node{node.Content[i], node.Content[i+1]})
	}
	return entries
}

// parseRoot walks the fixed top-level section order: client, tools,
// targets, nodes, commands. Every section except client is optional.
func (f *BuildFile) parseRoot(root *yaml.Node) {
	entries := mappingEntries(root)
	i := 0

	next := func() (string, *yaml.Node, *yaml.Node, bool) {
		if i >= len(entries) {
			return "", nil, nil, false
		}
		key, value := entries[i][0], entries[i][1]
		name := ""
		if key.Kind == yaml.ScalarNode {
			name = key.Value
		}
		return name, key, value, true
	}

	name, keyNode, value, ok := next()
	if !ok || name != "client" {
		f.errorAt(keyNode, "expected initial mapping key 'client'")
		return
	}
	if value.Kind != yaml.MappingNode {
		f.errorAt(value, "unexpected 'client' value (expected map)")
		return
	}
	f.parseClient(value)
	i++

	if name, _, value, ok = next(); ok && name == "tools" {
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "unexpected 'tools' value (expected map)")
		} else {
			f.parseTools(value)
		}
		i++
	}

	if name, _, value, ok = next(); ok && name == "targets" {
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "unexpected 'targets' value (expected map)")
		} else {
			f.parseTargets(value)
		}
		i++
	}

	if name, _, value, ok = next(); ok && name == "nodes" {
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "unexpected 'nodes' value (expected map)")
		} else {
			f.parseNodes(value)
		}
		i++
	}

	if name, _, value, ok = next(); ok && name == "commands" {
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "unexpected 'commands' value (expected map)")
		} else {
			f.parseCommands(value)
		}
		i++
	}

	if _, keyNode, _, ok = next(); ok {
		f.errorAt(keyNode, "unexpected trailing top-level section")
	}
}

func (f *BuildFile) parseClient(section *yaml.Node) {
	var name, version string
	properties := make(map[string]string)

	for _, entry := range mappingEntries(section) {
		key, value := entry[0], entry[1]
		if key.Kind != yaml.ScalarNode {
			f.errorAt(key, "invalid key type in 'client' map")
			continue
		}
		if value.Kind != yaml.ScalarNode {
			f.errorAt(value, "invalid value type in 'client' map")
			continue
		}
		switch key.Value {
		case "name":
			name = value.Value
		case "version":
			version = value.Value
		default:
			properties[key.Value] = value.Value
		}
	}

	if !f.delegate.ConfigureClient(name, version, properties) {
		f.errorAt(section, "unable to configure client")
	}
}

func (f *BuildFile) parseTools(section *yaml.Node) {
	for _, entry := range mappingEntries(section) {
		key, value := entry[0], entry[1]
		if key.Kind != yaml.ScalarNode {
			f.errorAt(key, "invalid key type in 'tools' map")
			continue
		}
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "invalid value type in 'tools' map")
			continue
		}

		tool, err := f.getOrCreateTool(key.Value, key)
		if err != nil {
			continue
		}
		for _, attr := range mappingEntries(value) {
			f.configureAttribute(tool, attr[0], attr[1], "tools")
		}
	}
}

func (f *BuildFile) parseTargets(section *yaml.Node) {
	for _, entry := range mappingEntries(section) {
		key, value := entry[0], entry[1]
		if key.Kind != yaml.ScalarNode {
			f.errorAt(key, "invalid key type in 'targets' map")
			continue
		}
		if value.Kind != yaml.SequenceNode {
			f.errorAt(value, "invalid value type in 'targets' map")
			continue
		}

		target := &Target{Name: key.Value}
		for _, nodeName := range value.Content {
			if nodeName.Kind != yaml.ScalarNode {
				f.errorAt(nodeName, "invalid node type in 'targets' map")
				continue
			}
			target.Nodes = append(target.Nodes,
				f.getOrCreateNode(nodeName.Value, true))
		}
		f.targets[target.Name] = target
	}
}

func (f *BuildFile) parseNodes(section *yaml.Node) {
	for _, entry := range mappingEntries(section) {
		key, value := entry[0], entry[1]
		if key.Kind != yaml.ScalarNode {
			f.errorAt(key, "invalid key type in 'nodes' map")
			continue
		}
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "invalid value type in 'nodes' map")
			continue
		}

		node := f.getOrCreateNode(key.Value, false)
		for _, attr := range mappingEntries(value) {
			f.configureAttribute(node, attr[0], attr[1], "nodes")
		}
	}
}

func (f *BuildFile) parseCommands(section *yaml.Node) {
	for _, entry := range mappingEntries(section) {
		key, value := entry[0], entry[1]
		if key.Kind != yaml.ScalarNode {
			f.errorAt(key, "invalid key type in 'commands' map")
			continue
		}
		if value.Kind != yaml.MappingNode {
			f.errorAt(value, "invalid value type in 'commands' map")
			continue
		}
		f.parseCommand(key, value)
	}
}

func (f *BuildFile) parseCommand(key, value *yaml.Node) {
	attrs := mappingEntries(value)

	// The first attribute must select the tool.
	if len(attrs) == 0 || attrs[0][0].Kind != yaml.ScalarNode ||
		attrs[0][0].Value != "tool" || attrs[0][1].Kind != yaml.ScalarNode {
		f.errorAt(value, "expected initial attribute 'tool'")
		return
	}
	tool, err := f.getOrCreateTool(attrs[0][1].Value, attrs[0][1])
	if err != nil {
		return
	}

	if _, exists := f.commands[key.Value]; exists {
		f.errorAt(key, "duplicate command in 'commands' map")
		return
	}
	command := tool.CreateCommand(key.Value)

	for _, attr := range attrs[1:] {
		attrKey, attrValue := attr[0], attr[1]
		if attrKey.Kind != yaml.ScalarNode {
			f.errorAt(attrKey, "invalid key type in 'commands' map")
			continue
		}

		switch attrKey.Value {
		case "description":
			if attrValue.Kind != yaml.ScalarNode {
				f.errorAt(attrValue, "invalid value for 'description' attribute")
				continue
			}
			command.ConfigureDescription(attrValue.Value)
		case "inputs":
			if nodes, ok := f.nodeList(attrValue, "inputs"); ok {
				command.ConfigureInputs(nodes)
			}
		case "outputs":
			// Output nodes gain a back-reference to their producer,
			// installed by the command itself.
			if nodes, ok := f.nodeList(attrValue, "outputs"); ok {
				command.ConfigureOutputs(nodes)
			}
		default:
			f.configureAttribute(command, attrKey, attrValue, "commands")
		}
	}

	f.commands[key.Value] = command
	f.commandOrder = append(f.commandOrder, key.Value)
}

func (f *BuildFile) nodeList(value *yaml.Node, attribute string) ([]Node, bool) {
	if value.Kind != yaml.SequenceNode {
		f.errorAt(value, "invalid value for '"+attribute+"' attribute")
		return nil, false
	}
	nodes := make([]Node, 0, len(value.Content))
	for _, nodeName := range value.Content {
		if nodeName.Kind != yaml.ScalarNode {
			f.errorAt(nodeName, "invalid node in '"+attribute+"' attribute")
			continue
		}
		nodes = append(nodes, f.getOrCreateNode(nodeName.Value, true))
	}
	return nodes, true
}

// configurable covers every loader-configured object.
type configurable interface {
	ConfigureAttribute(name, value string) error
	ConfigureAttributeList(name string, values []string) error
}

func (f *BuildFile) configureAttribute(obj configurable, key, value *yaml.Node, section string) {
	if key.Kind != yaml.ScalarNode {
		f.errorAt(key, "invalid key type in '"+section+"' map")
		return
	}

	switch value.Kind {
	case yaml.ScalarNode:
		if err := obj.ConfigureAttribute(key.Value, value.Value); err != nil {
			f.errorAt(key, err.Error())
		}
	case yaml.SequenceNode:
		values := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				f.errorAt(item, "invalid value type in '"+section+"' map")
				continue
			}
			values = append(values, item.Value)
		}
		if err := obj.ConfigureAttributeList(key.Value, values); err != nil {
			f.errorAt(key, err.Error())
		}
	default:
		f.errorAt(value, "invalid value type in '"+section+"' map")
	}
}

func (f *BuildFile) getOrCreateTool(name string, at *yaml.Node) (Tool, error) {
	if tool, ok := f.tools[name]; ok {
		return tool, nil
	}
	tool, err := f.delegate.LookupTool(name)
	if err != nil {
		f.errorAt(at, err.Error())
		return nil, err
	}
	f.tools[name] = tool
	return tool, nil
}

func (f *BuildFile) getOrCreateNode(name string, isImplicit bool) Node {
	if node, ok := f.nodes[name]; ok {
		return node
	}
	node := f.delegate.CreateNode(name, isImplicit)
	f.nodes[name] = node
	return node
}
