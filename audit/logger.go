package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger builds audit records and writes them. Write failures are logged and never
// returned; auditing must not fail the operation being audited.
type Logger struct {
	repo      Repo
	userAgent string
	nowTime   func() time.Time
	logger    zerolog.Logger
}

type LoggerOption func(*Logger)

func WithUserAgent(userAgent string) LoggerOption {
	return func(l *Logger) {
		l.userAgent = userAgent
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LoggerOption {
	return func(l *Logger) {
		l.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) LoggerOption {
	return func(l *Logger) {
		l.logger = logger
	}
}

func NewLogger(repo Repo, options ...LoggerOption) *Logger {
	l := &Logger{
		repo:    repo,
		nowTime: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Log records event for userID. An empty userID is stored as null.
func (l *Logger) Log(ctx context.Context, event Event, userID string, details Details) {
	if details == nil {
		details = Details{}
	}
	record := &Record{
		Action:    event,
		TableName: TableName,
		NewData: Data{
			Timestamp: l.nowTime().UTC(),
			UserAgent: l.userAgent,
			IPAddress: ClientIP,
			EventType: event,
			Details:   details,
		},
	}
	if userID != "" {
		record.UserID = &userID
	}

	if err := l.repo.Insert(ctx, record); err != nil {
		l.logger.Warn().Err(err).Str("event", string(event)).Msg("failed to log security event")
	}
}
