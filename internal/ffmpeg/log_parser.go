package ffmpeg

import "strings"

var logLevels = map[string]bool{
	"quiet": true, "panic": true, "fatal": true, "error": true, "warning": true,
	"info": true, "verbose": true, "debug": true, "trace": true,
}

// ParseLogLevel splits an ffmpeg stderr line written with -loglevel level+...
// into its level and message. Lines look like "[error] msg" or, for
// component output, "[libx264 @ 0x...] [error] msg"; the component prefix
// is kept in the message. Anything else is reported at info.
func ParseLogLevel(line string) (level, msg string) {
	tag, rest, ok := cutBracket(line)
	if !ok {
		return "info", line
	}
	if logLevels[tag] {
		return tag, rest
	}

	if inner, msgRest, ok := cutBracket(rest); ok && logLevels[inner] {
		return inner, line[:len(line)-len(rest)] + msgRest
	}
	return "info", line
}

// cutBracket splits "[tag] rest" into tag and rest.
func cutBracket(s string) (tag, rest string, ok bool) {
	if len(s) < 3 || s[0] != '[' {
		return "", s, false
	}
	end := strings.Index(s, "] ")
	if end == -1 {
		return "", s, false
	}
	return s[1:end], s[end+2:], true
}
