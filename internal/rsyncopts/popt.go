package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// Option argument kinds, mirroring the subset of popt(3)'s argInfo
// values this parser needs.
const (
	POPT_ARG_NONE = iota
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_ARG_VAL
	// POPT_BIT_SET ORs val into the bound *int instead of replacing it,
	// for flags that accumulate into a bitmask (e.g. missing_args).
	POPT_BIT_SET
)

// poptOption describes one recognized flag. When arg is non-nil, a
// match stores its value there and parsing continues silently; when
// arg is nil, a match instead returns val to the caller of
// poptGetNextOpt for special-case handling.
type poptOption struct {
	longName  string
	shortName string
	argInfo   int
	arg       any
	val       int
}

// PoptError is returned for malformed command lines.
type PoptError struct {
	Errno      int
	DaemonMode bool
	msg        string
}

func (e *PoptError) Error() string {
	prefix := "rsync"
	if e.DaemonMode {
		prefix = "rsyncd"
	}
	return fmt.Sprintf("%s: %s", prefix, e.msg)
}

const (
	// POPT_ERROR_BADOPT marks an unrecognized or malformed option.
	POPT_ERROR_BADOPT = 1
)

// Context carries the state of one command-line parse: the options
// being populated, the remaining table-driven parser position, and
// the non-option arguments accumulated along the way.
type Context struct {
	Options       *Options
	RemainingArgs []string

	table   []poptOption
	args    []string
	pos     int
	short   string // unparsed remainder of the current '-' cluster
	lastArg string
}

// poptGetOptArg returns the string argument most recently consumed by
// an option whose table entry had arg == nil (STRING/INT special
// cases handled in the caller's switch).
func (pc *Context) poptGetOptArg() string {
	return pc.lastArg
}

func (pc *Context) lookupLong(name string) (poptOption, bool) {
	for _, opt := range pc.table {
		if opt.longName == name {
			return opt, true
		}
	}
	return poptOption{}, false
}

func (pc *Context) lookupShort(name string) (poptOption, bool) {
	for _, opt := range pc.table {
		if opt.shortName == name {
			return opt, true
		}
	}
	return poptOption{}, false
}

func setPoptInt(arg any, v int) {
	if p, ok := arg.(*int); ok {
		*p = v
	}
}

func orPoptInt(arg any, v int) {
	if p, ok := arg.(*int); ok {
		*p |= v
	}
}

// poptGetNextOpt returns the next special-case option code (an entry
// whose table arg field is nil), storing every other recognized
// option directly into its bound field. It returns -1 once the
// argument list is exhausted, having collected every non-option
// argument into RemainingArgs.
//
// rsync/options.c:parse_arguments relies on the same table-driven
// popt(3) contract; this reimplements just the subset rsync actually
// exercises (long options, "--name=value", and clustered single-dash
// short options like -vvvvlogDtpre).
func (pc *Context) poptGetNextOpt() (int, error) {
	for {
		if pc.short != "" {
			c := pc.short[:1]
			rest := pc.short[1:]
			opt, ok := pc.lookupShort(c)
			if !ok {
				return -1, &PoptError{Errno: POPT_ERROR_BADOPT, msg: fmt.Sprintf("invalid option -%s", c)}
			}
			pc.short = rest

			switch opt.argInfo {
			case POPT_ARG_NONE:
				if opt.arg != nil {
					setPoptInt(opt.arg, 1)
					continue
				}
				return opt.val, nil

			case POPT_ARG_VAL:
				if opt.arg != nil {
					setPoptInt(opt.arg, opt.val)
					continue
				}
				return opt.val, nil

			case POPT_BIT_SET:
				if opt.arg != nil {
					orPoptInt(opt.arg, opt.val)
					continue
				}
				return opt.val, nil

			case POPT_ARG_STRING, POPT_ARG_INT:
				value := rest
				pc.short = ""
				if value == "" {
					if pc.pos >= len(pc.args) {
						return -1, &PoptError{Errno: POPT_ERROR_BADOPT, msg: fmt.Sprintf("option -%s requires an argument", c)}
					}
					value = pc.args[pc.pos]
					pc.pos++
				}
				pc.lastArg = value
				if opt.argInfo == POPT_ARG_INT {
					n, err := strconv.Atoi(value)
					if err != nil {
						return -1, &PoptError{Errno: POPT_ERROR_BADOPT, msg: fmt.Sprintf("option -%s: %v", c, err)}
					}
					if opt.arg != nil {
						setPoptInt(opt.arg, n)
						continue
					}
				} else if opt.arg != nil {
					if p, ok := opt.arg.(*string); ok {
						*p = value
					}
					continue
				}
				return opt.val, nil
			}
		}

		if pc.pos >= len(pc.args) {
			return -1, nil
		}
		token := pc.args[pc.pos]

		if token == "--" {
			pc.pos++
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			continue
		}

		if token == "-" || !strings.HasPrefix(token, "-") {
			pc.RemainingArgs = append(pc.RemainingArgs, token)
			pc.pos++
			continue
		}

		if strings.HasPrefix(token, "--") {
			pc.pos++
			name := token[2:]
			var inlineValue string
			hasInline := false
			if i := strings.IndexByte(name, '='); i >= 0 {
				inlineValue = name[i+1:]
				name = name[:i]
				hasInline = true
			}
			opt, ok := pc.lookupLong(name)
			if !ok {
				return -1, &PoptError{Errno: POPT_ERROR_BADOPT, msg: fmt.Sprintf("invalid option --%s", name)}
			}

			switch opt.argInfo {
			case POPT_ARG_NONE:
				if opt.arg != nil {
					setPoptInt(opt.arg, 1)
					continue
				}
				return opt.val, nil

			case POPT_ARG_VAL:
				if opt.arg != nil {
					setPoptInt(opt.arg, opt.val)
					continue
				}
				return opt.val, nil

			case POPT_BIT_SET:
				if opt.arg != nil {
					orPoptInt(opt.arg, opt.val)
					continue
				}
				return opt.val, nil

			case POPT_ARG_STRING, POPT_ARG_INT:
				value := inlineValue
				if !hasInline {
					if pc.pos >= len(pc.args) {
						return -1, &PoptError{Errno: POPT_ERROR_BADOPT, msg: fmt.Sprintf("option --%s requires an argument", name)}
					}
					value = pc.args[pc.pos]
					pc.pos++
				}
				pc.lastArg = value
				if opt.argInfo == POPT_ARG_INT {
					n, err := strconv.Atoi(value)
					if err != nil {
						return -1, &PoptError{Errno: POPT_ERROR_BADOPT, msg: fmt.Sprintf("option --%s: %v", name, err)}
					}
					if opt.arg != nil {
						setPoptInt(opt.arg, n)
						continue
					}
				} else if opt.arg != nil {
					if p, ok := opt.arg.(*string); ok {
						*p = value
					}
					continue
				}
				return opt.val, nil
			}
			continue
		}

		// Single-dash cluster of short options, e.g. -vvvvlogDtpre.
		pc.pos++
		pc.short = token[1:]
	}
}
