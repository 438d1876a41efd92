package conf

import (
	"strings"
)

const stringListDelimiter = ","

// stringListValue is a custom kingpin parser for flags holding a string
// slice. Elements may be given comma-separated, by repeating the flag, or by
// mixing both: `--workload=hello,compute --workload=proxy` yields
// hello,compute,proxy.
type stringListValue []string

// Set parses one occurrence of the flag and appends its elements.
// Implements kingpin.Value.
func (s *stringListValue) Set(value string) error {
	*s = append(*s, strings.Split(value, stringListDelimiter)...)
	return nil
}

// String returns the accumulated elements. Implements kingpin.Value.
func (s *stringListValue) String() string {
	return strings.Join(*s, stringListDelimiter)
}

// IsCumulative implements kingpin's optional repeatableFlag interface, so
// repeating the flag accumulates instead of failing the parse.
func (s *stringListValue) IsCumulative() bool {
	return true
}
