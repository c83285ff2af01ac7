package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-advisor-auth/auth"
	"github.com/jrsteele09/go-advisor-auth/authstate"
	"github.com/jrsteele09/go-advisor-auth/callback"
	"github.com/jrsteele09/go-advisor-auth/internal/utils"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// errActionFailed reports an action whose outcome was already shown as a notification.
var errActionFailed = errors.New("action failed")

const usage = `commands:
  signup   -email -password -name -phone [-city]
  signin   -email -password
  oauth    google|apple
  whoami
  refresh
  profile  [-name] [-phone] [-city] [-avatar]
  password -current -new
  delete   -yes
  signout
  watch    follow the session until interrupted
  migrate  apply database migrations (one shot only)
  help`

func (a *app) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]
	switch name {
	case "signup":
		return a.signUp(ctx, args)
	case "signin":
		return a.signIn(ctx, args)
	case "oauth":
		return a.oauth(ctx, args)
	case "whoami":
		return a.whoami()
	case "refresh":
		return outcome(a.store.RefreshSession(ctx))
	case "profile":
		return a.updateProfile(ctx, args)
	case "password":
		return a.changePassword(ctx, args)
	case "delete":
		return a.deleteAccount(ctx, args)
	case "signout":
		return outcome(a.store.SignOut(ctx))
	case "watch":
		return a.watch(ctx)
	case "help":
		fmt.Fprintln(a.out, usage)
		return nil
	}
	return errors.Errorf("unknown command %q", name)
}

// shell reads commands from in until EOF, exit or an interrupt. The session monitor keeps
// running between commands.
func (a *app) shell(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintln(a.out, usage)
	for {
		fmt.Fprint(a.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			args := strings.Fields(line)
			if len(args) > 0 && (args[0] == "exit" || args[0] == "quit") {
				return nil
			}
			if err := a.execute(ctx, args); err != nil && !errors.Is(err, errActionFailed) {
				fmt.Fprintf(a.out, "%s%s%s\n", red, err, resetColor)
			}
		}
	}
}

func (a *app) signUp(ctx context.Context, args []string) error {
	fs := a.flagSet("signup")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	var data auth.SignUpData
	fs.StringVar(&data.Name, "name", "", "display name")
	fs.StringVar(&data.Phone, "phone", "", "Saudi mobile number")
	fs.StringVar(&data.City, "city", "", "city")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return outcome(a.store.SignUp(ctx, *email, *password, data))
}

func (a *app) signIn(ctx context.Context, args []string) error {
	fs := a.flagSet("signin")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return outcome(a.store.SignIn(ctx, *email, *password))
}

// oauth serves the callback locally, prints the provider URL and waits for the browser to
// come back.
func (a *app) oauth(ctx context.Context, args []string) error {
	var start func(context.Context) (*auth.OAuthRedirect, bool)
	switch {
	case len(args) == 1 && args[0] == "google":
		start = a.store.SignInWithGoogle
	case len(args) == 1 && args[0] == "apple":
		start = a.store.SignInWithApple
	default:
		return errors.New("usage: oauth google|apple")
	}

	results := make(chan error, 1)
	handler := callback.NewHandler(a.store, callback.WithResult(func(_ *users.User, err error) {
		select {
		case results <- err:
		default:
		}
	}))
	server := &http.Server{Addr: a.config.GetCallbackAddr(), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer shutdown(server)

	redirect, ok := start(ctx)
	if !ok {
		return errActionFailed
	}
	fmt.Fprintf(a.out, "%s%s%s\n", gray, redirect.URL, resetColor)

	select {
	case err := <-results:
		if err != nil {
			return errActionFailed
		}
		return a.whoami()
	case err := <-serveErr:
		return errors.Wrap(err, "[oauth] callback server")
	case <-ctx.Done():
		return nil
	}
}

func (a *app) whoami() error {
	user := a.store.Snapshot().User
	if user == nil {
		fmt.Fprintln(a.out, "signed out")
		return nil
	}
	rows := [][2]string{
		{"id", user.ID},
		{"email", user.Email},
		{"name", user.Name},
		{"phone", user.Phone},
		{"city", user.City},
		{"plan", string(user.SubscriptionType)},
		{"provider", string(user.AuthProvider)},
		{"logins", fmt.Sprint(user.LoginCount)},
	}
	if session := a.service.CurrentSession(); session != nil {
		rows = append(rows, [2]string{"expires", session.ExpiresAt.Local().Format(time.RFC1123)})
	}
	for _, row := range rows {
		fmt.Fprintf(a.out, "%s%-9s%s %s\n", gray, row[0], resetColor, row[1])
	}
	return nil
}

func (a *app) updateProfile(ctx context.Context, args []string) error {
	fs := a.flagSet("profile")
	name := fs.String("name", "", "display name")
	phone := fs.String("phone", "", "Saudi mobile number")
	city := fs.String("city", "", "city")
	avatar := fs.String("avatar", "", "avatar URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var update users.Update
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			update.Name = utils.Ptr(*name)
		case "phone":
			update.Phone = utils.Ptr(*phone)
		case "city":
			update.City = utils.Ptr(*city)
		case "avatar":
			update.AvatarURL = utils.Ptr(*avatar)
		}
	})
	return outcome(a.store.UpdateProfile(ctx, update))
}

func (a *app) changePassword(ctx context.Context, args []string) error {
	fs := a.flagSet("password")
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return outcome(a.store.ChangePassword(ctx, *current, *next))
}

func (a *app) deleteAccount(ctx context.Context, args []string) error {
	fs := a.flagSet("delete")
	yes := fs.Bool("yes", false, "confirm the account and its profile are removed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("pass -yes to delete the account")
	}
	return outcome(a.store.DeleteAccount(ctx))
}

// watch prints state changes until ctx is done.
func (a *app) watch(ctx context.Context) error {
	unsubscribe := a.store.Subscribe(func(state authstate.State) {
		if state.Loading {
			return
		}
		if state.User == nil {
			log.Info().Msg("signed out")
			return
		}
		log.Info().Str("user_id", state.User.ID).Str("email", state.User.Email).Msg("signed in")
	})
	defer unsubscribe()
	<-ctx.Done()
	return nil
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func outcome(ok bool) error {
	if !ok {
		return errActionFailed
	}
	return nil
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("callback server shutdown")
	}
}
