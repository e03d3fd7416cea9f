package redis

// Keys names everything the watcher writes under one prefix
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

// Latest holds the most recently accepted result
func (k Keys) Latest() string {
	return k.prefix + "latest"
}

// Results receives every accepted result
func (k Keys) Results() string {
	return k.prefix + "results"
}

// Navigation receives every detected URL change
func (k Keys) Navigation() string {
	return k.prefix + "navigation"
}
