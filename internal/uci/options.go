package uci

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hailam/tempest/internal/engine"
	"github.com/samber/lo"
)

type optionKind string

const (
	optSpin   optionKind = "spin"
	optButton optionKind = "button"
	optString optionKind = "string"
)

// option is one entry of the "uci" option list. set receives the raw value
// and the options being rebuilt; buttons ignore the value.
type option struct {
	name     string
	kind     optionKind
	def      string
	min, max int
	set      func(u *UCI, opts *engine.Options, value string) error
}

var errUnknownOption = errors.New("unknown option")

func spin(name string, def, minV, maxV int, set func(*engine.Options, int)) option {
	return option{
		name: name, kind: optSpin, def: strconv.Itoa(def), min: minV, max: maxV,
		set: func(_ *UCI, opts *engine.Options, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if n < minV || n > maxV {
				return fmt.Errorf("%s: %d outside [%d, %d]", name, n, minV, maxV)
			}
			set(opts, n)
			return nil
		},
	}
}

var options = []option{
	spin("Threads", 1, 1, engine.MaxThreads, func(o *engine.Options, n int) { o.Threads = n }),
	spin("Hash", engine.DefaultHashMiB, 1, engine.MaxHashMiB, func(o *engine.Options, n int) { o.HashMiB = n }),
	{
		name: "Clear Hash", kind: optButton,
		set: func(u *UCI, _ *engine.Options, _ string) error {
			u.pool.Clear()
			return nil
		},
	},
	spin("MultiPV", 1, 1, engine.MaxMultiPV, func(o *engine.Options, n int) { o.MultiPV = n }),
	spin("Move Overhead", int(engine.DefaultMoveOverhead/time.Millisecond), 0, int(engine.MaxMoveOverhead/time.Millisecond),
		func(o *engine.Options, n int) { o.MoveOverhead = time.Duration(n) * time.Millisecond }),
	{
		name: "EvalFile", kind: optString, def: "<empty>",
		set: func(u *UCI, opts *engine.Options, value string) error {
			if err := u.loadNetwork(value); err != nil {
				return err
			}
			opts.EvalFile = value
			return nil
		},
	},
	spin("SyzygyProbeDepth", 1, 1, engine.MaxDepth, func(o *engine.Options, n int) { o.SyzygyProbeDepth = n }),
	spin("SyzygyProbeLimit", engine.MaxSyzygyPieces, 0, engine.MaxSyzygyPieces, func(o *engine.Options, n int) { o.SyzygyProbeLimit = n }),
	{
		name: "TBCache", kind: optString, def: "<empty>",
		set: func(u *UCI, opts *engine.Options, value string) error {
			if err := u.openTablebase(value); err != nil {
				return err
			}
			opts.TBCache = value
			return nil
		},
	},
}

func findOption(name string) (option, bool) {
	return lo.Find(options, func(o option) bool {
		return strings.EqualFold(o.name, name)
	})
}

func (o option) String() string {
	switch o.kind {
	case optSpin:
		return fmt.Sprintf("option name %s type spin default %s min %d max %d", o.name, o.def, o.min, o.max)
	case optButton:
		return fmt.Sprintf("option name %s type button", o.name)
	}
	return fmt.Sprintf("option name %s type %s default %s", o.name, o.kind, o.def)
}

// parseSetOption splits "name <n...> value <v...>".
func parseSetOption(args []string) (name, value string) {
	var nameParts, valueParts []string
	var cur *[]string
	for _, arg := range args {
		switch arg {
		case "name":
			cur = &nameParts
		case "value":
			cur = &valueParts
		default:
			if cur != nil {
				*cur = append(*cur, arg)
			}
		}
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " ")
}
