package router

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nidhogg/campus-eval/internal/action"
	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/task"
	"go.uber.org/zap"
)

// Router dispatches one parsed action to the subsystem that owns it,
// restricted to the systems allowed for the current task.
type Router struct {
	world   *campus.World
	reg     *Registry
	allowed []string
	logger  *zap.Logger
}

// New creates a router over the default action surface. A nil allow-list
// permits every system; an empty one permits none.
func New(world *campus.World, allowed []string, logger *zap.Logger) *Router {
	return NewWithRegistry(Default(), world, allowed, logger)
}

// NewWithRegistry creates a router over a custom action surface.
func NewWithRegistry(reg *Registry, world *campus.World, allowed []string, logger *zap.Logger) *Router {
	if allowed == nil {
		allowed = task.AllSystems
	}
	return &Router{world: world, reg: reg, allowed: allowed, logger: logger}
}

// Allowed reports whether a system is on the allow-list.
func (r *Router) Allowed(system string) bool {
	return slices.Contains(r.allowed, system)
}

// Actions lists the sorted names of every callable action.
func (r *Router) Actions() []string {
	return r.reg.Names(r.Allowed)
}

// Execute runs "name(args)" and returns the subsystem's result. It never
// panics: malformed input and subsystem faults become error results.
func (r *Router) Execute(text string) (res campus.ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("action panicked", zap.String("action", text), zap.Any("panic", p))
			res = campus.Errorf("Failed to execute action '%s': %v", text, p)
		}
	}()

	call, err := action.ParseCall(text)
	if err != nil {
		return campus.Errorf("Failed to execute action '%s': %v", text, err)
	}

	act, ok := r.reg.Lookup(call.Name)
	if !ok {
		return campus.Failure("Action '%s' is not available. Available actions: %s",
			call.Name, strings.Join(r.Actions(), ", "))
	}
	if !r.Allowed(act.System) {
		return campus.Failure("System '%s' is not available for this task. Available systems: %s",
			act.System, strings.Join(r.allowed, ", "))
	}

	args, err := bind(act, call.Args)
	if err != nil {
		return campus.Errorf("Failed to execute action '%s': %v", text, err)
	}

	res = act.Handle(r.world, args)
	r.logger.Debug("action executed",
		zap.String("action", act.Name), zap.String("status", string(res.Status)))
	return res
}

// bind applies renames, maps positional arguments onto declared parameters
// and rejects unknown or missing ones.
func bind(act Action, raw map[string]any) (Args, error) {
	out := make(Args, len(raw))
	var positional []string
	for k := range raw {
		if strings.HasPrefix(k, "arg_") {
			positional = append(positional, k)
		}
	}
	slices.SortFunc(positional, func(a, b string) int {
		return cmp.Compare(argIndex(a), argIndex(b))
	})

	for k, v := range raw {
		if strings.HasPrefix(k, "arg_") {
			continue
		}
		if to, ok := act.Renames[k]; ok {
			k = to
		}
		if !act.param(k) {
			return nil, fmt.Errorf("%s() got an unexpected keyword argument '%s'", act.Method, k)
		}
		out[k] = v
	}
	for i, k := range positional {
		if i >= len(act.Params) {
			return nil, fmt.Errorf("%s() takes %d positional arguments but more were given", act.Method, len(act.Params))
		}
		name := act.Params[i].Name
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%s() got multiple values for argument '%s'", act.Method, name)
		}
		out[name] = raw[k]
	}
	for _, p := range act.Params {
		if _, ok := out[p.Name]; p.Required && !ok {
			return nil, fmt.Errorf("%s() missing required argument: '%s'", act.Method, p.Name)
		}
	}
	return out, nil
}

func argIndex(key string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(key, "arg_"))
	return n
}
