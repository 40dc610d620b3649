package jobs

import (
	"sort"
	"strconv"
	"strings"
)

// Payload is a plain key/value job payload. Everything a handler needs
// must round-trip through string values so payloads stay representable
// on any wire format the job runner uses.
type Payload map[string]string

// SetUint64 stores an unsigned integer value
func (p Payload) SetUint64(key string, value uint64) {
	p[key] = strconv.FormatUint(value, 10)
}

// GetUint64 reads an unsigned integer value, 0 when absent or malformed
func (p Payload) GetUint64(key string) uint64 {
	v, err := strconv.ParseUint(p[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SetInt64 stores a signed integer value
func (p Payload) SetInt64(key string, value int64) {
	p[key] = strconv.FormatInt(value, 10)
}

// GetInt64 reads a signed integer value, 0 when absent or malformed
func (p Payload) GetInt64(key string) int64 {
	v, err := strconv.ParseInt(p[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SetRange stores a numeric range as an ordered pair of keys
func (p Payload) SetRange(key string, min, max int64) {
	p.SetInt64(key+".min", min)
	p.SetInt64(key+".max", max)
}

// Range reads a numeric range stored by SetRange
func (p Payload) Range(key string) (min, max int64) {
	return p.GetInt64(key + ".min"), p.GetInt64(key + ".max")
}

// Canonical renders the payload as a deterministic string, used as the
// deduplication key: two payloads with the same argument set always
// produce the same canonical form.
func (p Payload) Canonical() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p[k])
	}
	return b.String()
}
