package language

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Language identifiers registered by default
const (
	Python     = "python"
	JavaScript = "javascript"
	C          = "c"
	CPP        = "cpp"
	Java       = "java"
	SQL        = "sql"
)

// SQLPreamble seeds the query engine with demo tables so that a bare SELECT has something to read
const SQLPreamble = `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, role TEXT);
INSERT INTO users (name, role) VALUES ('Admin', 'Administrator'), ('Guest', 'Visitor');
CREATE TABLE logs (id INTEGER PRIMARY KEY, message TEXT);
INSERT INTO logs (message) VALUES ('System initialized'), ('User logged in');`

// Registry is a read-only set of language profiles
type Registry struct {
	profiles map[string]Profile
	names    []string
}

// NewRegistry builds a registry from the given profiles
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.profiles[p.Name]; dup {
			return nil, fmt.Errorf("language %s registered twice", p.Name)
		}
		r.profiles[p.Name] = p
		r.names = append(r.names, p.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the profile registered under name
func (r *Registry) Lookup(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns the registered language identifiers in sorted order
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Profiles returns all profiles sorted by name
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.profiles[name])
	}
	return out
}

// Override changes deployment specific settings of a default profile
type Override struct {
	Image       string
	Version     string
	Environment map[string]string
}

// Default returns the built-in registry
func Default() *Registry {
	r, err := NewRegistry(DefaultProfiles()...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultProfiles returns the built-in language profiles
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:           Python,
			DisplayName:    "Python",
			Version:        "3",
			Kind:           KindInterpreted,
			SourceFile:     "main.py",
			Run:            []string{"python3", "-u", PlaceholderSource},
			Image:          "python:3.12-slim",
			Environment:    map[string]string{"PYTHONDONTWRITEBYTECODE": "1"},
			RemoteLanguage: "python",
		},
		{
			Name:           JavaScript,
			DisplayName:    "JavaScript",
			Version:        "20",
			Kind:           KindInterpreted,
			SourceFile:     "index.js",
			Run:            []string{"node", PlaceholderSource},
			Image:          "node:20-alpine",
			RemoteLanguage: "javascript",
		},
		{
			Name:           C,
			DisplayName:    "C",
			Version:        "10.2.0",
			Kind:           KindCompiled,
			SourceFile:     "main.c",
			Compile:        []string{"gcc", "-std=c11", "-O2", "-o", PlaceholderArtifact, PlaceholderSource, "-lm"},
			Run:            []string{"./" + PlaceholderArtifact},
			Artifact:       "app",
			Image:          "gcc:13",
			RemoteLanguage: "c",
			RemoteVersion:  "10.2.0",
		},
		{
			Name:           CPP,
			DisplayName:    "C++",
			Version:        "10.2.0",
			Kind:           KindCompiled,
			SourceFile:     "main.cpp",
			Compile:        []string{"g++", "-std=c++17", "-O2", "-o", PlaceholderArtifact, PlaceholderSource},
			Run:            []string{"./" + PlaceholderArtifact},
			Artifact:       "app",
			Image:          "gcc:13",
			RemoteLanguage: "cpp",
			RemoteVersion:  "10.2.0",
		},
		{
			Name:                 Java,
			DisplayName:          "Java",
			Version:              "17",
			Kind:                 KindCompiled,
			SourceFile:           "Main.java",
			DeriveFromPublicType: true,
			Compile:              []string{"javac", "-encoding", "UTF-8", PlaceholderSource},
			Run:                  []string{"java", "-cp", ".", PlaceholderStem},
			Image:                "eclipse-temurin:17-jdk",
			RemoteLanguage:       "java",
		},
		{
			Name:           SQL,
			DisplayName:    "SQL",
			Version:        "3",
			Kind:           KindQuery,
			SourceFile:     "script.sql",
			Run:            []string{"sqlite3", "-header", "-column", "store.db"},
			Image:          "keinos/sqlite3:latest",
			RemoteLanguage: "sqlite3",
			Preamble:       SQLPreamble,
		},
	}
}

// WithOverrides returns a registry where each profile named in overrides has
// its image, version and environment replaced by the non-empty override values
func WithOverrides(base *Registry, overrides map[string]Override) (*Registry, error) {
	profiles := base.Profiles()
	for i, p := range profiles {
		o, ok := overrides[p.Name]
		if !ok {
			continue
		}
		if o.Image != "" {
			p.Image = o.Image
		}
		if o.Version != "" {
			p.Version = o.Version
		}
		if len(o.Environment) > 0 {
			env := make(map[string]string, len(p.Environment)+len(o.Environment))
			for k, v := range p.Environment {
				env[k] = v
			}
			for k, v := range o.Environment {
				env[k] = v
			}
			p.Environment = env
		}
		profiles[i] = p
	}
	return NewRegistry(profiles...)
}

type registryFile struct {
	Languages []Profile `yaml:"languages"`
}

// LoadFile reads a YAML registry file replacing the built-in profiles
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read languages file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML registry document
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse languages file: %w", err)
	}
	if len(file.Languages) == 0 {
		return nil, fmt.Errorf("languages file defines no languages")
	}
	return NewRegistry(file.Languages...)
}
