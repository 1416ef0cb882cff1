package recommend

import (
	"context"
	"fmt"
	"strconv"

	"github.com/netwatch-hq/netwatch/pkg/model"
)

// Shell is the subset of DeviceShell Apply drives to translate a
// Suggestion's parameters into configuration changes.
type Shell interface {
	SetKV(ctx context.Context, key, value string) error
	Commit(ctx context.Context) error
	RestartRadio(ctx context.Context) error
}

// ApplyResult describes what Apply did with a token.
type ApplyResult struct {
	Pending bool   // true when confirm was false: nothing was changed yet
	Applied bool   // true once the suggestion's changes were committed
	Hint    string // human-readable follow-up, e.g. "rescan to confirm effect"
}

// Apply looks up token's pending suggestion. With confirm == false it
// returns a pending-confirmation echo without touching the device. With
// confirm == true it translates the suggestion's parameters into shell
// calls, commits them, restarts the radio if the suggestion requires it,
// and consumes the token so a second call on the same token always fails
// with UnknownSuggestionError.
func (e *Engine) Apply(ctx context.Context, token string, confirm bool, shell Shell) (ApplyResult, error) {
	suggestion, err := e.Lookup(token)
	if err != nil {
		return ApplyResult{}, err
	}

	if !confirm {
		return ApplyResult{Pending: true, Hint: "call again with confirm=true to apply"}, nil
	}

	if err := applyParameters(ctx, suggestion, shell); err != nil {
		return ApplyResult{}, err
	}

	if suggestion.RequiresRestart {
		if err := shell.RestartRadio(ctx); err != nil {
			return ApplyResult{}, err
		}
	}

	e.Consume(token)

	return ApplyResult{Applied: true, Hint: "rescan to confirm the change took effect"}, nil
}

func applyParameters(ctx context.Context, s model.Suggestion, shell Shell) error {
	switch s.ActionType {
	case "setWifiChannel":
		band, _ := s.Parameters["band"].(string)
		channel := paramInt(s.Parameters["channel"])
		key := fmt.Sprintf("wireless.radio_%s.channel", band)
		if err := shell.SetKV(ctx, key, strconv.Itoa(channel)); err != nil {
			return err
		}
		return shell.Commit(ctx)

	case "setWifiSetting":
		band, _ := s.Parameters["band"].(string)
		field, _ := s.Parameters["field"].(string)
		value, _ := s.Parameters["value"].(string)
		key := fmt.Sprintf("wireless.radio_%s.%s", band, field)
		if err := shell.SetKV(ctx, key, value); err != nil {
			return err
		}
		return shell.Commit(ctx)

	case "disableWanFeature":
		feature, _ := s.Parameters["feature"].(string)
		key := fmt.Sprintf("firewall.%s.enabled", feature)
		if err := shell.SetKV(ctx, key, "0"); err != nil {
			return err
		}
		return shell.Commit(ctx)

	case "recommendWiredBackhaul":
		// Advisory only: there is no device-side knob that moves a node's
		// backhaul from wireless to wired, since that requires physically
		// running a cable. Applying this suggestion just acknowledges it.
		return nil

	default:
		return nil
	}
}

func paramInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}
