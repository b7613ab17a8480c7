package protocol

import (
	"regexp"

	"github.com/alexpitcher/condoor/internal/fsm"
	"github.com/alexpitcher/condoor/internal/patterns"
)

// Shared dialog event names, used by both the telnet and ssh connect FSMs
// and by the authenticate FSM they share (spec.md section 4.4:
// "Authenticate FSM identical in shape to telnet").
const (
	eventBanner          fsm.EventID = "banner"
	eventPressReturn     fsm.EventID = "press_return"
	eventStandby         fsm.EventID = "standby"
	eventUsername        fsm.EventID = "username"
	eventPassword        fsm.EventID = "password"
	eventMore            fsm.EventID = "more"
	eventPrompt          fsm.EventID = "prompt"
	eventRommon          fsm.EventID = "rommon"
	eventUnableToConnect fsm.EventID = "unable_to_connect"
)

// promptEvents builds the shared event list common to telnet and ssh
// connect/authenticate FSMs, anchoring the dynamic target prompt pattern
// last so more specific events win ties per spec.md section 5's
// leftmost-pattern rule (earlier entries take priority on equal start
// offset, but dynamic prompts tend to be the longest match so ordering
// them after the narrower login-dialog patterns avoids them swallowing a
// username/password prompt that happens to look like a shell prompt).
func promptEvents(reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp) ([]fsm.EventDef, error) {
	username, err := reg.Get(platform, patterns.Username)
	if err != nil {
		return nil, err
	}
	password, err := reg.Get(platform, patterns.Password)
	if err != nil {
		return nil, err
	}
	more, err := reg.Get(platform, patterns.More)
	if err != nil {
		return nil, err
	}
	rommon, err := reg.Get(platform, patterns.Rommon)
	if err != nil {
		return nil, err
	}
	standby, err := reg.Get(platform, patterns.Standby)
	if err != nil {
		return nil, err
	}
	pressReturn, err := reg.Get(platform, patterns.PressReturn)
	if err != nil {
		return nil, err
	}
	unableToConnect, err := reg.Get(platform, patterns.UnableToConnect)
	if err != nil {
		return nil, err
	}

	return []fsm.EventDef{
		{ID: eventStandby, Pattern: standby},
		{ID: eventPressReturn, Pattern: pressReturn},
		{ID: eventUnableToConnect, Pattern: unableToConnect},
		{ID: eventUsername, Pattern: username},
		{ID: eventPassword, Pattern: password},
		{ID: eventMore, Pattern: more},
		{ID: eventRommon, Pattern: rommon},
		{ID: eventPrompt, Pattern: targetPrompt},
	}, nil
}
