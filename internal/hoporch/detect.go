package hoporch

import (
	"regexp"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
)

// Prompt auto-detection (spec.md section 4.4): used when a hop's banner
// dialog doesn't naturally yield a recognizable prompt — principally
// discovery's initial generic connect, where the device's prompt format
// isn't known ahead of time and the registry's catch-all pattern may not
// match an unfamiliar vendor banner.
const (
	detectPromptMaxAttempts = 10
	detectPromptAcceptRatio = 0.3
	detectPromptGrowth      = 1.2
	detectPromptQuiet       = 300 * time.Millisecond
)

// DetectPrompt runs the dual-sendline heuristic: send a newline, read until
// the channel goes quiet, send another newline, read again, and compare the
// two tails with Levenshtein distance. Two consecutive reads that agree
// closely enough (distance/len(prev) below detectPromptAcceptRatio) are
// taken as the device settling on its idle prompt; the accepted prompt's
// last line is then anchored on a leading CRLF/LFCR to build a compiled
// match. Retries up to detectPromptMaxAttempts times with a growing
// per-attempt read timeout.
func DetectPrompt(ch expect.Channel, timeout time.Duration) (string, *regexp.Regexp, error) {
	attemptTimeout := timeout
	var prev string
	havePrev := false

	for attempt := 0; attempt < detectPromptMaxAttempts; attempt++ {
		ch.SendLine("")
		tail, err := readUntilQuiet(ch, attemptTimeout)
		if err != nil {
			return "", nil, cerrors.NewConnectionTimeoutError("prompt auto-detection: channel closed", "", err)
		}

		if havePrev && prev != "" && tail != "" {
			dist := levenshtein.ComputeDistance(prev, tail)
			if float64(dist)/float64(len(prev)) < detectPromptAcceptRatio {
				return compileDetectedPrompt(lastLine(tail))
			}
		}

		prev = tail
		havePrev = true
		attemptTimeout = time.Duration(float64(attemptTimeout) * detectPromptGrowth)
	}
	return "", nil, cerrors.NewConnectionTimeoutError("prompt auto-detection: no stable prompt after retries", "", nil)
}

func compileDetectedPrompt(line string) (string, *regexp.Regexp, error) {
	if line == "" {
		return "", nil, cerrors.NewConnectionError("prompt auto-detection: empty prompt line", "", nil)
	}
	re, err := regexp.Compile(`[\r\n]+` + regexp.QuoteMeta(line) + `\s?$`)
	if err != nil {
		return "", nil, err
	}
	return line, re, nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// readUntilQuiet accumulates output until a detectPromptQuiet-wide window
// passes with nothing new, or the overall timeout elapses.
func readUntilQuiet(ch expect.Channel, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var sb strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := ch.ReadNonblocking(4096, detectPromptQuiet)
		if err != nil {
			return "", err
		}
		if chunk == "" {
			if sb.Len() > 0 {
				break
			}
			continue
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}
