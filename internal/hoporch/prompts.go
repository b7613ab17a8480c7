// Package hoporch implements the Hop Orchestrator (spec.md section 4.5):
// walking a hop chain, checking reachability, running the protocol drivers
// hop by hop, cycling between alternative chains on failure, and the
// graceful disconnect dialog.
package hoporch

// FakePromptSentinel occupies slot 0 of a DetectedPromptTable — spec.md
// section 3 calls it "a synthetic slot 0 'fake prompt' sentinel" so that
// real hop indices start at 1 and "no hop reached yet" has a distinct,
// never-matching value.
const FakePromptSentinel = "\x00condoor-no-hop-reached\x00"

// DetectedPromptTable holds one prompt string per hop, plus the sentinel
// slot 0. Its length is always len(hops)+1 (spec.md section 3 invariant).
type DetectedPromptTable struct {
	slots []string
}

// NewDetectedPromptTable allocates a table sized for hopCount hops.
func NewDetectedPromptTable(hopCount int) *DetectedPromptTable {
	slots := make([]string, hopCount+1)
	slots[0] = FakePromptSentinel
	return &DetectedPromptTable{slots: slots}
}

// Len returns the number of slots (hopCount + 1).
func (t *DetectedPromptTable) Len() int { return len(t.slots) }

// Set records the prompt detected at hop index i (1-based: the first real
// hop is index 1).
func (t *DetectedPromptTable) Set(i int, prompt string) { t.slots[i] = prompt }

// Get returns the prompt recorded at hop index i.
func (t *DetectedPromptTable) Get(i int) string { return t.slots[i] }

// All returns every populated slot (including the sentinel and the target
// hop's own slot).
func (t *DetectedPromptTable) All() []string {
	out := make([]string, len(t.slots))
	copy(out, t.slots)
	return out
}

// EarlierOnly returns the table with the last slot blanked out, for callers
// building the "earlier-hop prompt" event set spec.md section 4.6.2
// describes for wait_for_prompt. The last slot holds the target hop's own
// prompt text, detected generically during connect — passing it through
// unblanked would make that slot's earlier-hop event collide with (and,
// being earlier in the event list, shadow) the real target-prompt event on
// every single command, since both match the same literal prompt text.
// Slot indices are preserved (not compacted) so a caller reporting
// lastHop from a matched slot number stays meaningful.
func (t *DetectedPromptTable) EarlierOnly() []string {
	out := t.All()
	if n := len(out); n > 0 {
		out[n-1] = ""
	}
	return out
}
