package funcapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"funcapp-deploy/internal/azcli"
)

// WaitForEventTrigger polls the app's function list until one of the
// functions carries the Event Grid trigger marker in its name. Malformed
// output and failing az invocations are logged and retried after the poll
// interval. It returns ctx.Err() once ctx is done.
func (b *Base) WaitForEventTrigger(ctx context.Context) error {
	argv := b.az(
		"functionapp", "function", "list",
		"-n", b.name,
		"-g", b.resourceGroup,
		"--query", "[].name",
	)
	b.lg.Info().Msg("awaiting event trigger on function app")

	for {
		list, err := azcli.JSONList(ctx, b.runner, argv...)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil:
			names := functionNames(list)
			b.lg.Info().Strs("functions", names).Msg("app functions")
			if fn, ok := matchTrigger(names, b.opts.triggerMarker); ok {
				b.lg.Info().Str("function", fn).Msg("found event grid trigger")
				return nil
			}
		case azcli.IsDecodeError(err):
			b.lg.Warn().Err(err).Msg("error decoding function list")
		case azcli.IsCommandError(err):
			b.lg.Debug().Err(err).Msg("error listing functions")
		default:
			return fmt.Errorf("list functions: %w", err)
		}

		if err := sleep(ctx, b.opts.pollInterval); err != nil {
			return err
		}
	}
}

func functionNames(list []any) []string {
	names := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

// matchTrigger reports the first name containing marker. The comparison
// ignores case: az returns names such as "myapp/eventGridTrigger" while
// users name functions "EventGridTrigger1".
func matchTrigger(names []string, marker string) (string, bool) {
	m := strings.ToLower(marker)
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), m) {
			return n, true
		}
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
