// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profilestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/coheara/engine/pkg/cherr"
)

// registry is the in-memory, mutex-guarded view of profiles.json.
type registry struct {
	mu       sync.Mutex
	path     string
	profiles []ProfileMeta
}

func loadRegistry(root string) (*registry, error) {
	path := filepath.Join(root, registryFileName)
	r := &registry{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, cherr.Wrap(cherr.Internal, "read profile registry", err)
	}
	if len(data) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(data, &r.profiles); err != nil {
		return nil, cherr.Wrap(cherr.Internal, "parse profile registry", err)
	}
	return r, nil
}

func (r *registry) save() error {
	data, err := json.MarshalIndent(r.profiles, "", "  ")
	if err != nil {
		return cherr.Wrap(cherr.Internal, "marshal profile registry", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return cherr.Wrap(cherr.Internal, "write profile registry", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return cherr.Wrap(cherr.Internal, "commit profile registry", err)
	}
	return nil
}

// findByName reports whether a profile with the exact (case-sensitive)
// name already exists.
func (r *registry) findByName(name string) (ProfileMeta, bool) {
	for _, p := range r.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ProfileMeta{}, false
}

func (r *registry) findByID(id string) (ProfileMeta, bool) {
	for _, p := range r.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return ProfileMeta{}, false
}

func (r *registry) add(meta ProfileMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.findByName(meta.Name); exists {
		return cherr.New(cherr.ProfileExists, "a profile with this name already exists")
	}
	r.profiles = append(r.profiles, meta)
	return r.save()
}

func (r *registry) remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.profiles[:0]
	for _, p := range r.profiles {
		if p.ID != id {
			out = append(out, p)
		}
	}
	r.profiles = out
	return r.save()
}

func (r *registry) get(id string) (ProfileMeta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByID(id)
}

func (r *registry) list() []ProfileMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProfileMeta, len(r.profiles))
	copy(out, r.profiles)
	return out
}

func (r *registry) replace(meta ProfileMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.profiles {
		if p.ID == meta.ID {
			r.profiles[i] = meta
			return r.save()
		}
	}
	return cherr.New(cherr.NotFound, "profile not found")
}
