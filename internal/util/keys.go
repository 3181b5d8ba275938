package util

import "strings"

// Key joins a namespace, a kind tag and an item id: "<ns>:<kind>:<id>".
// An empty namespace yields "<kind>:<id>".
func Key(ns, kind, id string) string {
	if ns == "" {
		return kind + ":" + id
	}
	var b strings.Builder
	b.Grow(len(ns) + len(kind) + len(id) + 2)
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(kind)
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

// Tagged returns "<ns>:{<id>}:<kind>". Every key of one id shares the
// Redis Cluster hash tag {<id>}, so they live in one slot and can be used
// together in multi-key commands and transactions.
func Tagged(ns, id, kind string) string {
	var b strings.Builder
	b.Grow(len(ns) + len(id) + len(kind) + 4)
	b.WriteString(ns)
	b.WriteString(":{")
	b.WriteString(id)
	b.WriteString("}:")
	b.WriteString(kind)
	return b.String()
}
