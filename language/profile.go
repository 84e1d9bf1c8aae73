package language

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind describes the execution pipeline of a language
type Kind string

const (
	// KindInterpreted runs the source file directly with an interpreter
	KindInterpreted Kind = "interpreted"
	// KindCompiled compiles the source first and runs the produced artifact
	KindCompiled Kind = "compiled"
	// KindQuery pipes the source into a query engine
	KindQuery Kind = "query"
)

// Command template placeholders
const (
	PlaceholderSource   = "{source}"
	PlaceholderArtifact = "{artifact}"
	PlaceholderStem     = "{stem}"
)

// DefaultPublicType is used when no public type declaration is found in the source
const DefaultPublicType = "Main"

var publicTypePattern = regexp.MustCompile(`public\s+(?:(?:final|abstract|static|sealed|strictfp)\s+)*(?:class|interface|enum|record)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

// Profile is an immutable registry entry. When DeriveFromPublicType is set
// the source file is named after the public type declared in the code.
type Profile struct {
	Name                 string            `yaml:"name"`
	DisplayName          string            `yaml:"display_name"`
	Version              string            `yaml:"version"`
	Kind                 Kind              `yaml:"kind"`
	SourceFile           string            `yaml:"source_file"`
	DeriveFromPublicType bool              `yaml:"derive_from_public_type"`
	Compile              []string          `yaml:"compile"`
	Run                  []string          `yaml:"run"`
	Artifact             string            `yaml:"artifact"`
	Image                string            `yaml:"image"`
	Environment          map[string]string `yaml:"environment"`
	RemoteLanguage       string            `yaml:"remote_language"`
	RemoteVersion        string            `yaml:"remote_version"`
	Preamble             string            `yaml:"preamble"`
}

// Compiled reports whether the profile produces an artifact before running
func (p Profile) Compiled() bool {
	return p.Kind == KindCompiled
}

// SourceFileName returns the file name the code must be written to
func (p Profile) SourceFileName(code string) string {
	if !p.DeriveFromPublicType {
		return p.SourceFile
	}
	ext := filepath.Ext(p.SourceFile)
	return PublicTypeName(code) + ext
}

// CompileArgv expands the compile template for the given source file
func (p Profile) CompileArgv(source string) []string {
	return p.expand(p.Compile, source)
}

// RunArgv expands the run template for the given source file
func (p Profile) RunArgv(source string) []string {
	return p.expand(p.Run, source)
}

// RemoteName returns the language identifier understood by the remote service
func (p Profile) RemoteName() string {
	if p.RemoteLanguage != "" {
		return p.RemoteLanguage
	}
	return p.Name
}

// RemoteVersionOrAny returns the remote version, "*" meaning latest
func (p Profile) RemoteVersionOrAny() string {
	if p.RemoteVersion != "" {
		return p.RemoteVersion
	}
	return "*"
}

// WithPreamble joins the preamble onto the first line of the code so that
// engine diagnostics report the caller's own line numbers.
func (p Profile) WithPreamble(code string) string {
	if p.Preamble == "" {
		return code
	}
	return strings.ReplaceAll(p.Preamble, "\n", " ") + " " + code
}

func (p Profile) expand(tmpl []string, source string) []string {
	stem := strings.TrimSuffix(source, filepath.Ext(source))
	replacer := strings.NewReplacer(
		PlaceholderSource, source,
		PlaceholderArtifact, p.Artifact,
		PlaceholderStem, stem,
	)

	out := make([]string, len(tmpl))
	for i, arg := range tmpl {
		out[i] = replacer.Replace(arg)
	}
	return out
}

func (p Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	switch p.Kind {
	case KindInterpreted, KindQuery:
	case KindCompiled:
		if len(p.Compile) == 0 {
			return fmt.Errorf("language %s: compiled profile requires a compile command", p.Name)
		}
	default:
		return fmt.Errorf("language %s: invalid kind %q", p.Name, p.Kind)
	}
	if p.SourceFile == "" {
		return fmt.Errorf("language %s: source_file is required", p.Name)
	}
	if strings.ContainsAny(p.SourceFile, `/\`) {
		return fmt.Errorf("language %s: source_file must be a plain file name", p.Name)
	}
	if len(p.Run) == 0 {
		return fmt.Errorf("language %s: run command is required", p.Name)
	}
	if strings.Contains(p.Preamble, "--") {
		return fmt.Errorf("language %s: preamble must not contain line comments", p.Name)
	}
	return nil
}

// PublicTypeName scans the source for the first public type declaration.
// It is a text heuristic, not a parser: declarations inside comments or
// strings match too, and DefaultPublicType is returned when nothing matches.
func PublicTypeName(code string) string {
	m := publicTypePattern.FindStringSubmatch(code)
	if m == nil {
		return DefaultPublicType
	}
	return m[1]
}
