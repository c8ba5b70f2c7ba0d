package adprovider

import (
	"context"
	"sync"
	"time"
)

// ScriptedProvider replays a fixed sequence of results. Used by tests and by
// the daemon's dev mode, where no real SDK bridge is running.
type ScriptedProvider struct {
	mu     sync.Mutex
	script []ScriptedStep
	idx    int
}

// ScriptedStep is one scripted Show call: an optional simulated watch delay
// followed by either a result or an error.
type ScriptedStep struct {
	Delay  time.Duration
	Result ShowResult
	Err    error
}

// NewScriptedProvider creates a provider that replays steps in order and
// repeats the last step once the script is exhausted.
func NewScriptedProvider(steps ...ScriptedStep) *ScriptedProvider {
	if len(steps) == 0 {
		steps = []ScriptedStep{{Result: ShowResult{Done: true, State: "completed"}}}
	}
	return &ScriptedProvider{script: steps}
}

// Show implements Provider.
func (p *ScriptedProvider) Show(ctx context.Context, blockID string) (ShowResult, error) {
	p.mu.Lock()
	step := p.script[p.idx]
	if p.idx < len(p.script)-1 {
		p.idx++
	}
	p.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return ShowResult{}, &ShowError{Sentinel: ErrProviderFailure, BlockID: blockID, Err: ctx.Err()}
		}
	}
	if step.Err != nil {
		return step.Result, step.Err
	}
	if err := Classify(blockID, step.Result); err != nil {
		return step.Result, err
	}
	return step.Result, nil
}
