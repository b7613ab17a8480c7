// Package protocol implements the telnet and ssh protocol drivers spec.md
// section 4.4 describes: each is a pair of FSMs (connect, authenticate)
// driving a spawned child process through internal/expect, plus a
// console-mode sibling for terminal-server login dynamics.
//
// The state-table shape is grounded on internal/fsm (itself grounded on the
// other_examples Marionette fsm.go); the actual dialogs below are new,
// written from spec.md section 4.4's prose description of the telnet and
// ssh connect/authenticate sequences, since no example repo drives a
// network device CLI. Host-key vocabulary (InsecureIgnoreHostKey-style
// naming, key fingerprint parsing) is grounded on the other_examples
// nanoncore-nano-agent southbound driver, which is the only file in the
// pack that touches golang.org/x/crypto/ssh.
package protocol

import (
	"strconv"

	"github.com/alexpitcher/condoor/internal/hopurl"
)

// SpawnCommand builds the argv for the spawned transport process, per
// spec.md section 6's "Spawned process contract".
func SpawnCommand(hop hopurl.HopDescriptor, sshv1 bool) (name string, args []string) {
	switch hop.Scheme {
	case hopurl.SchemeSSH:
		args = []string{
			"-o", "UserKnownHostsFile=/dev/null",
			"-o", "StrictHostKeyChecking=no",
		}
		if sshv1 {
			args = append(args, "-1")
		} else {
			args = append(args, "-2")
		}
		args = append(args, "-p", strconv.Itoa(hop.Port))
		target := hop.Host
		if hop.HasUsername {
			target = hop.Username + "@" + hop.Host
		}
		args = append(args, target)
		return "ssh", args
	default:
		return "telnet", []string{hop.Host, strconv.Itoa(hop.Port)}
	}
}
