package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver interpolates {{$ENV_VAR}}, {{name}} and {{helper(args)}}
// references in configuration values. It is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	funcs     *Functions
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		funcs:     NewFunctions(),
	}
}

// SetWarnFunc sets a function to be called when warnings occur (e.g., unresolved variables)
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

func (r *Resolver) lookup(expr string) (string, bool) {
	if strings.HasPrefix(expr, "$") {
		if val, ok := os.LookupEnv(expr[1:]); ok {
			return val, true
		}
		return "", false
	}

	if strings.Contains(expr, "(") {
		if result, ok := r.funcs.Call(expr); ok {
			return fmt.Sprintf("%v", result), true
		}
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if val, ok := r.variables[expr]; ok {
		return fmt.Sprintf("%v", val), true
	}
	return "", false
}

// Resolve replaces every reference it can; unresolved ones stay as written
func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		if val, ok := r.lookup(expr); ok {
			return val
		}
		r.warn("unresolved reference: %s", expr)
		return match
	})
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// ResolveSlice resolves every element of values
func (r *Resolver) ResolveSlice(values []string) []string {
	result := make([]string, len(values))
	for i, v := range values {
		result[i] = r.Resolve(v)
	}
	return result
}

// GetUnresolvedVariables lists references in input that cannot be resolved
func (r *Resolver) GetUnresolvedVariables(input string) []string {
	var out []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		if _, ok := r.lookup(expr); !ok {
			out = append(out, expr)
		}
	}
	return out
}

func (r *Resolver) HasUnresolvedVariables(input string) bool {
	return len(r.GetUnresolvedVariables(input)) > 0
}

// ResolveSession interpolates static header values and signing secrets of
// every step in place. Payloads, queries and variables are left untouched
// so the recorded requests replay as captured. It returns an error naming
// the first reference that could not be resolved.
func (r *Resolver) ResolveSession(s *session.Session) error {
	for i, step := range s.Steps {
		b := step.Base()
		for j := range b.Headers {
			h := &b.Headers[j]
			if missing := r.GetUnresolvedVariables(h.Value); len(missing) > 0 {
				return fmt.Errorf("step %d header %s: unresolved %s", i, h.ID, strings.Join(missing, ", "))
			}
			h.Value = r.Resolve(h.Value)
			if h.Hash != nil {
				if missing := r.GetUnresolvedVariables(h.Hash.Secret); len(missing) > 0 {
					return fmt.Errorf("step %d header %s secret: unresolved %s", i, h.ID, strings.Join(missing, ", "))
				}
				h.Hash.Secret = r.Resolve(h.Hash.Secret)
			}
		}
	}
	return nil
}
