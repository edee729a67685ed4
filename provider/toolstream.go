package provider

import (
	"anvil/chat"
)

// toolCallStream tracks one tool call as its pieces arrive over an
// OpenAI-style delta stream.
type toolCallStream struct {
	id        string
	name      string
	scanner   *argScanner
	announced bool
	finished  bool
}

// toolCallStreamTracker turns OpenAI-style tool call deltas into anvil
// stream events: an announcement fragment once the name is known, per-key
// argument fragments as bytes arrive, and a complete parsed call when the
// accumulator closes it.
//
// mapName rewrites tool names on the way out (OpenRouter's underscore
// restoration); nil means identity.
type toolCallStreamTracker struct {
	mapName func(string) string
	order   []*toolCallStream
	byIndex map[int]*toolCallStream
}

func newToolCallStreamTracker(mapName func(string) string) *toolCallStreamTracker {
	return &toolCallStreamTracker{
		mapName: mapName,
		byIndex: make(map[int]*toolCallStream),
	}
}

func (t *toolCallStreamTracker) sawAny() bool {
	return len(t.order) > 0
}

func (t *toolCallStreamTracker) mapped(name string) string {
	if t.mapName == nil {
		return name
	}
	return t.mapName(name)
}

// emitDelta consumes one streamed tool call delta and forwards the
// resulting fragments.
func (t *toolCallStreamTracker) emitDelta(index int, id, name, args string, cb chat.StreamCallback) error {
	st, ok := t.byIndex[index]
	if !ok {
		st = &toolCallStream{scanner: newArgScanner()}
		t.byIndex[index] = st
		t.order = append(t.order, st)
	}

	if id != "" && st.id == "" {
		st.id = id
	}
	if name != "" {
		st.name += name
	}

	if cb == nil {
		return nil
	}

	// Announce as soon as the name is known so partial state can render
	if !st.announced && st.name != "" {
		st.announced = true
		ev := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
			ID:   st.id,
			Name: t.mapped(st.name),
		}}
		if err := cb(ev); err != nil {
			return err
		}
	}

	if args == "" {
		return nil
	}
	for _, se := range st.scanner.feed(args) {
		if err := t.emitScanEvent(st, se, cb); err != nil {
			return err
		}
	}
	return nil
}

// emitFinished closes out the oldest unfinished call and delivers the
// complete parsed version. name and argsJSON come from the accumulator.
func (t *toolCallStreamTracker) emitFinished(name, argsJSON string, cb chat.StreamCallback) error {
	var st *toolCallStream
	for _, cand := range t.order {
		if cand.finished {
			continue
		}
		if st == nil || cand.name == name {
			st = cand
			if cand.name == name {
				break
			}
		}
	}
	if st == nil {
		st = &toolCallStream{name: name, scanner: newArgScanner()}
		t.order = append(t.order, st)
	}
	st.finished = true

	if cb == nil {
		return nil
	}

	for _, se := range st.scanner.finish() {
		if err := t.emitScanEvent(st, se, cb); err != nil {
			return err
		}
	}

	done := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
		ID:       st.id,
		Name:     t.mapped(name),
		CallDone: true,
	}}
	if err := cb(done); err != nil {
		return err
	}

	call := chat.NewToolCall(t.mapped(name), ParseToolArguments(argsJSON))
	if st.id != "" {
		call.ID = st.id
	}
	return cb(chat.StreamEvent{ToolCalls: []*chat.ToolCall{call}})
}

func (t *toolCallStreamTracker) emitScanEvent(st *toolCallStream, se scanEvent, cb chat.StreamCallback) error {
	ev := chat.StreamEvent{Fragment: &chat.ToolCallFragment{
		ID:         st.id,
		Name:       t.mapped(st.name),
		Key:        se.Key,
		ValueDelta: se.Delta,
		Value:      se.Value,
		KeyDone:    se.Done,
	}}
	return cb(ev)
}
