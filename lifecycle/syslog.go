package lifecycle

import (
	"log/syslog"

	"github.com/semihalev/zlog/v2"
)

// TryInitSyslog attempts to dial the local syslog daemon and, on success,
// keeps the connection so Notice can send startup/shutdown milestones there.
// zlog's own output is not redirected to syslog. A failure to dial is swallowed: the daemon has no syslog dependency to
// speak of, so logging simply stays on its default (stderr) path.
func TryInitSyslog(tag string) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		zlog.Debug("syslog unavailable, continuing with stderr logging", "error", err.Error())
		return
	}
	syslogWriter = w
}

// syslogWriter is nil unless TryInitSyslog succeeded. Kept as a package
// variable rather than threaded through call sites since it mirrors, at
// most, a handful of startup/shutdown lines that don't warrant plumbing a
// logger handle through every package.
var syslogWriter *syslog.Writer

// Notice writes a startup/shutdown milestone to syslog, if available, in
// addition to whatever zlog already sent to stderr.
func Notice(msg string) {
	if syslogWriter != nil {
		_ = syslogWriter.Notice(msg)
	}
}
