package bible

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeYAML reads a bible seed document. Entity ids default to their map keys.
func DecodeYAML(r io.Reader) (*Bible, error) {
	var b Bible
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		if err == io.EOF {
			return New(""), nil
		}
		return nil, fmt.Errorf("decode bible yaml: %w", err)
	}
	b.ensureMaps()
	for id, c := range b.Characters {
		if c.EntityID == "" {
			c.EntityID = id
		}
		if c.Status == "" {
			c.Status = StatusAlive
		}
		c.Status = Status(strings.ToLower(string(c.Status)))
		b.Characters[id] = c
	}
	for id, l := range b.Locations {
		if l.EntityID == "" {
			l.EntityID = id
			b.Locations[id] = l
		}
	}
	for id, o := range b.Objects {
		if o.EntityID == "" {
			o.EntityID = id
			b.Objects[id] = o
		}
	}
	return &b, nil
}

// EncodeYAML writes b as a YAML document.
func EncodeYAML(w io.Writer, b *Bible) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(b); err != nil {
		return fmt.Errorf("encode bible yaml: %w", err)
	}
	return encoder.Close()
}
