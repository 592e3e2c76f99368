package buildsystem

import "go.trai.ch/anvil/internal/core/domain"

// Engine keys are a single kind byte followed by the object name.
const (
	keyKindCommand = "C"
	keyKindNode    = "N"
	keyKindTarget  = "T"
)

// MakeCommandKey returns the engine key for a command.
func MakeCommandKey(name string) domain.Key {
	return domain.Key(keyKindCommand + name)
}

// MakeNodeKey returns the engine key for a node.
func MakeNodeKey(name string) domain.Key {
	return domain.Key(keyKindNode + name)
}

// MakeTargetKey returns the engine key for a target.
func MakeTargetKey(name string) domain.Key {
	return domain.Key(keyKindTarget + name)
}

// splitKey separates an engine key into its kind and name. Unknown or empty
// keys return an empty kind.
func splitKey(key domain.Key) (string, string) {
	if len(key) == 0 {
		return "", ""
	}
	kind := string(key[:1])
	switch kind {
	case keyKindCommand, keyKindNode, keyKindTarget:
		return kind, string(key[1:])
	default:
		return "", string(key)
	}
}
