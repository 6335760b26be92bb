package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrUnknownDescriptor is returned when a descriptor id is not registered.
var ErrUnknownDescriptor = errors.New("unknown descriptor")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Registry is the read-only set of descriptors consulted by the generator.
type Registry struct {
	byID map[string]*Descriptor
	ids  []string
}

// NewRegistry builds a registry, rejecting invalid or duplicate descriptors.
func NewRegistry(descs ...*Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Descriptor, len(descs))}
	for _, d := range descs {
		if err := r.add(d); err != nil {
			return nil, err
		}
	}
	sort.Strings(r.ids)
	return r, nil
}

func (r *Registry) add(d *Descriptor) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("descriptor %q: %w", d.ID, err)
	}
	if _, dup := r.byID[d.ID]; dup {
		return fmt.Errorf("descriptor %q registered twice", d.ID)
	}
	r.byID[d.ID] = d
	r.ids = append(r.ids, d.ID)
	return nil
}

// Get returns the descriptor with id.
func (r *Registry) Get(id string) (*Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDescriptor, id)
	}
	return d, nil
}

// All returns every descriptor ordered by id.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of descriptors.
func (r *Registry) Len() int { return len(r.ids) }

type catalog struct {
	Descriptors []*Descriptor `yaml:"descriptors"`
}

// ReadCatalog decodes a YAML descriptor catalog.
func ReadCatalog(rd io.Reader) ([]*Descriptor, error) {
	var c catalog
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return c.Descriptors, nil
}

// LoadFiles reads every catalog file into one registry.
func LoadFiles(paths ...string) (*Registry, error) {
	var all []*Descriptor
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		descs, err := ReadCatalog(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, descs...)
	}
	return NewRegistry(all...)
}
