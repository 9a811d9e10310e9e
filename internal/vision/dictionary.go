package vision

import (
	"fmt"
	"sort"
)

// dictionaryCodes maps fiducial dictionary names to OpenCV's predefined
// dictionary enum. The table is read-only.
var dictionaryCodes = map[string]int{
	"DICT_4X4_50":         0,
	"DICT_4X4_100":        1,
	"DICT_4X4_250":        2,
	"DICT_4X4_1000":       3,
	"DICT_5X5_50":         4,
	"DICT_5X5_100":        5,
	"DICT_5X5_250":        6,
	"DICT_5X5_1000":       7,
	"DICT_6X6_50":         8,
	"DICT_6X6_100":        9,
	"DICT_6X6_250":        10,
	"DICT_6X6_1000":       11,
	"DICT_7X7_50":         12,
	"DICT_7X7_100":        13,
	"DICT_7X7_250":        14,
	"DICT_7X7_1000":       15,
	"DICT_ARUCO_ORIGINAL": 16,
}

// LookupDictionary resolves a dictionary name to its OpenCV code.
func LookupDictionary(name string) (int, error) {
	code, ok := dictionaryCodes[name]
	if !ok {
		return 0, fmt.Errorf("unknown marker dictionary %q", name)
	}
	return code, nil
}

// DictionaryNames lists the supported dictionary names in sorted order.
func DictionaryNames() []string {
	names := make([]string, 0, len(dictionaryCodes))
	for n := range dictionaryCodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
