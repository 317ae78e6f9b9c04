package cache

import "strings"

const keyPrefix = "cache:"

// Key addresses one cached value: cache:{category}:{session}:{parts...}.
type Key struct {
	Category Category
	Parts    []string
}

// NewKey builds a Key.
func NewKey(cat Category, parts ...string) Key {
	return Key{Category: cat, Parts: parts}
}

func (k Key) String() string {
	return keyPrefix + string(k.Category) + ":" + strings.Join(k.Parts, ":")
}

func (k Key) valid() bool {
	if !k.Category.valid() || len(k.Parts) == 0 {
		return false
	}
	for _, p := range k.Parts {
		if p == "" || strings.Contains(p, ":") {
			return false
		}
	}
	return true
}

// Session returns the owning session id. Every category puts it first.
func (k Key) Session() string {
	if len(k.Parts) == 0 {
		return ""
	}
	return k.Parts[0]
}

func parseKey(s string) (Key, bool) {
	rest, ok := strings.CutPrefix(s, keyPrefix)
	if !ok {
		return Key{}, false
	}
	fields := strings.Split(rest, ":")
	if len(fields) < 2 {
		return Key{}, false
	}
	k := Key{Category: Category(fields[0]), Parts: fields[1:]}
	return k, k.valid()
}
