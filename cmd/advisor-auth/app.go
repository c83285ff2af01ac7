package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-advisor-auth/audit"
	auditpg "github.com/jrsteele09/go-advisor-auth/audit/repopg"
	auditrest "github.com/jrsteele09/go-advisor-auth/audit/reporest"
	"github.com/jrsteele09/go-advisor-auth/auth"
	"github.com/jrsteele09/go-advisor-auth/authstate"
	"github.com/jrsteele09/go-advisor-auth/internal/config"
	"github.com/jrsteele09/go-advisor-auth/internal/pgdb"
	"github.com/jrsteele09/go-advisor-auth/lock"
	"github.com/jrsteele09/go-advisor-auth/storage"
	"github.com/jrsteele09/go-advisor-auth/supabase"
	userpg "github.com/jrsteele09/go-advisor-auth/users/repopg"
	userrest "github.com/jrsteele09/go-advisor-auth/users/reporest"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	redisPrefix       = "advisor"
	sessionStorageTTL = 24 * time.Hour
	providerBurst     = 5
)

// app is the composition root shared by one shot commands and the interactive shell.
type app struct {
	config  config.Config
	service *auth.Service
	store   *authstate.Store
	out     io.Writer
	closers []func()
}

func newApp(ctx context.Context, c config.Config, out io.Writer) (a *app, err error) {
	a = &app{config: c, out: out}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if !c.IsConfigured() {
		log.Warn().Msg("supabase is not configured, using placeholder credentials")
	}
	clientOptions := []supabase.ClientOption{supabase.WithRateLimit(c.GetRequestsPerSecond(), providerBurst)}
	if c.GetVerifyTokens() {
		clientOptions = append(clientOptions, supabase.WithTokenVerification())
	}
	client, err := supabase.New(c.GetSupabaseURL(), c.GetSupabaseAnonKey(), clientOptions...)
	if err != nil {
		return nil, err
	}

	deps := auth.Deps{
		Provider: client,
		Users:    userrest.NewRestUserRepo(client),
		Audit:    auditrest.NewRestAuditRepo(client),
	}

	if dsn := c.GetDatabaseURL(); dsn != "" {
		db, err := pgdb.New(ctx, dsn)
		if err != nil {
			return nil, errors.Wrap(err, "[newApp] connect database")
		}
		a.closers = append(a.closers, db.Close)
		deps.Users = userpg.NewPgUserRepo(db)
		deps.Audit = auditpg.NewPgAuditRepo(db)
		log.Debug().Msg("profile and audit rows stored in postgres")
	}

	if url := c.GetRedisURL(); url != "" {
		rdb, err := storage.ConnectRedis(ctx, url)
		if err != nil {
			return nil, errors.Wrap(err, "[newApp] connect redis")
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		deps.Local = storage.NewRedis(rdb, redisPrefix+":local")
		deps.Session = storage.NewRedis(rdb, redisPrefix+":session", storage.WithTTL(sessionStorageTTL))
		deps.Locker = lock.NewRedis(rdb, redisPrefix+":lock")
		log.Debug().Msg("client storage and refresh lock shared through redis")
	}

	service, err := auth.NewService(deps, auth.ConfigFrom(c), auth.WithUserAgent(c.GetUserAgent()))
	if err != nil {
		return nil, err
	}
	a.service = service
	a.closers = append(a.closers, service.Close)

	a.store = authstate.New(service,
		authstate.WithNotifier(authstate.NotifierFunc(a.notify)),
		authstate.WithAuditLogger(audit.NewLogger(deps.Audit, audit.WithUserAgent(c.GetUserAgent()))),
	)
	if err := a.store.Mount(ctx); err != nil {
		log.Warn().Err(err).Msg("starting signed out")
	}
	a.closers = append(a.closers, a.store.Unmount)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) notify(n authstate.Notification) {
	fmt.Fprintf(a.out, "%s%s%s\n", levelColors[n.Level], n.Message, resetColor)
}
