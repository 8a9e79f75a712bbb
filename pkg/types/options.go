package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type OptionKind int

const (
	OptionString OptionKind = iota
	OptionInt
	OptionBool
	OptionStringList
)

// OptionValue is a tagged variant for adapter options parsed out of a
// workflow file: string, int, bool, or list of strings.
type OptionValue struct {
	Kind OptionKind
	Str  string
	Int  int64
	Bool bool
	List []string
}

func StringOption(s string) OptionValue { return OptionValue{Kind: OptionString, Str: s} }
func IntOption(i int64) OptionValue     { return OptionValue{Kind: OptionInt, Int: i} }
func BoolOption(b bool) OptionValue     { return OptionValue{Kind: OptionBool, Bool: b} }
func ListOption(l []string) OptionValue {
	return OptionValue{Kind: OptionStringList, List: l}
}

// String renders the value the way it is placed on a command line.
// Lists join with commas, matching how nmap/nuclei style tools take
// multi-valued flags.
func (v OptionValue) String() string {
	switch v.Kind {
	case OptionInt:
		return strconv.FormatInt(v.Int, 10)
	case OptionBool:
		return strconv.FormatBool(v.Bool)
	case OptionStringList:
		return strings.Join(v.List, ",")
	default:
		return v.Str
	}
}

// Truthy reports whether a bool-like option is set. String values "true"
// and "1" count as set so workflows can spell flags either way.
func (v OptionValue) Truthy() bool {
	switch v.Kind {
	case OptionBool:
		return v.Bool
	case OptionInt:
		return v.Int != 0
	case OptionString:
		return v.Str == "true" || v.Str == "1"
	}
	return false
}

// UnmarshalYAML accepts scalars and string sequences.
func (v *OptionValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return v.fromInterface(raw)
}

func (v *OptionValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return v.fromInterface(raw)
}

func (v OptionValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case OptionInt:
		return json.Marshal(v.Int)
	case OptionBool:
		return json.Marshal(v.Bool)
	case OptionStringList:
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *OptionValue) fromInterface(raw interface{}) error {
	switch val := raw.(type) {
	case string:
		*v = StringOption(val)
	case bool:
		*v = BoolOption(val)
	case int:
		*v = IntOption(int64(val))
	case int64:
		*v = IntOption(val)
	case float64:
		if val != float64(int64(val)) {
			return fmt.Errorf("option value %v: floats are not supported", val)
		}
		*v = IntOption(int64(val))
	case []interface{}:
		list := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("option list element %v is not a string", item)
			}
			list = append(list, s)
		}
		*v = ListOption(list)
	default:
		return fmt.Errorf("unsupported option value type %T", raw)
	}
	return nil
}
