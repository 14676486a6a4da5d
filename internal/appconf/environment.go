package appconf

import (
	"fmt"
	"strings"
)

// Environment is the operating environment of the process.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

var environmentNames = map[Environment]string{
	Development: "development",
	Test:        "test",
	Production:  "production",
}

func (e Environment) String() string {
	if name, ok := environmentNames[e]; ok {
		return name
	}
	return fmt.Sprintf("environment(%d)", int(e))
}

// ParseEnvironment accepts the environment names case-insensitively, plus
// the short forms dev and prod.
func ParseEnvironment(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	}
	return Development, fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, name)
}
