package models

import "strings"

// NoDescription is the description given to items the narrator added
// without one.
const NoDescription = "no description"

var junkChars = strings.NewReplacer(`"`, "", `'`, "", "{", "", "}", "")

// RepairItemEntry recovers a name/description pair from an item whose name
// swallowed its description, such as `{"Rope": "A coil of rope"}`. Only
// entries whose description is NoDescription are touched. The key is split
// on its first colon and stripped of quotes and braces. This is a best
// effort heuristic: the worst case is an empty name.
func RepairItemEntry(key, desc string) (string, string) {
	if desc != NoDescription {
		return key, desc
	}

	key = strings.ReplaceAll(key, "：", ":")
	name, rest, found := strings.Cut(key, ":")
	if !found {
		return strings.TrimSpace(junkChars.Replace(key)), NoDescription
	}

	name = strings.TrimSpace(junkChars.Replace(name))
	rest = strings.TrimSpace(junkChars.Replace(rest))
	if rest == "" {
		rest = NoDescription
	}
	return name, rest
}
