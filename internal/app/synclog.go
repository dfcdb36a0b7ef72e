package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"hostaway_sync/internal/domain"
)

const (
	defaultLogKeep = 1000
	maxLogMessage  = 2000
)

// logRecorder appends to the sync log and trims it to the newest keep
// rows after every append. Write failures are only reported.
type logRecorder struct {
	repo domain.SyncLogRepository
	keep int
}

func newLogRecorder(repo domain.SyncLogRepository, keep int) logRecorder {
	if keep <= 0 {
		keep = defaultLogKeep
	}
	return logRecorder{repo: repo, keep: keep}
}

func (r logRecorder) record(ctx context.Context, action, status, msg string) {
	msg = truncateMessage(strings.TrimSpace(msg), maxLogMessage)
	if err := r.repo.AppendLog(ctx, action, status, msg); err != nil {
		log.Error().Err(err).Str("action", action).Msg("append sync log failed")
		return
	}
	if err := r.repo.TrimLogs(ctx, r.keep); err != nil {
		log.Warn().Err(err).Msg("trim sync logs failed")
	}
}

// truncateMessage cuts s to at most max bytes without splitting a rune.
func truncateMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
