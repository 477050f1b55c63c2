package env

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Func is a helper callable as {{name(args)}}
type Func func(args []string) any

// Functions holds the helpers available to interpolation
type Functions struct {
	funcs map[string]Func
	faker *gofakeit.Faker
}

// NewFunctions returns the default helper set
func NewFunctions() *Functions {
	f := &Functions{
		funcs: make(map[string]Func),
		faker: gofakeit.New(0),
	}
	f.funcs["uuid"] = func([]string) any { return uuid.New().String() }
	f.funcs["now"] = func([]string) any { return time.Now().UTC().Format(time.RFC3339) }
	f.funcs["timestamp"] = func([]string) any { return time.Now().Unix() }
	f.funcs["timestampMs"] = func([]string) any { return time.Now().UnixMilli() }
	f.funcs["base64"] = funcBase64
	f.funcs["random"] = f.random
	f.funcs["randomEmail"] = func([]string) any { return f.faker.Email() }
	f.funcs["firstName"] = func([]string) any { return f.faker.FirstName() }
	f.funcs["lastName"] = func([]string) any { return f.faker.LastName() }
	return f
}

// Register adds or replaces a helper
func (f *Functions) Register(name string, fn Func) {
	f.funcs[name] = fn
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates "name(arg, ...)"; ok is false for unknown helpers
func (f *Functions) Call(expr string) (any, bool) {
	m := funcCallPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, false
	}
	fn, ok := f.funcs[m[1]]
	if !ok {
		return nil, false
	}
	var args []string
	if m[2] != "" {
		for _, a := range strings.Split(m[2], ",") {
			args = append(args, strings.Trim(strings.TrimSpace(a), `"'`))
		}
	}
	return fn(args), true
}

func funcBase64(args []string) any {
	if len(args) < 1 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0]))
}

func (f *Functions) random(args []string) any {
	min, max := 0, 100
	if len(args) >= 2 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			min = v
		}
		if v, err := strconv.Atoi(args[1]); err == nil {
			max = v
		}
	}
	if max < min {
		min, max = max, min
	}
	return f.faker.Number(min, max)
}
