// Package language provides the language registry.
//
// The registry maps a language identifier (python, c, java, sql, ...) to an
// immutable Profile describing how to compile and run source code written in
// it: the canonical source filename, the compile and run command templates,
// the container image used when isolation is enabled and the name/version
// understood by a remote execution service.
//
// A Registry is built once at startup, from the defaults or from a YAML file,
// and is then shared read-only by every request.
//
// Usage:
//
//	reg := language.Default()
//	profile, ok := reg.Lookup("python")
//	if !ok {
//	    log.Fatal("python not registered")
//	}
//	argv := profile.RunArgv("main.py")
package language
