// Package callback serves the OAuth redirect target for clients that complete provider sign
// in through a local browser.
package callback

import (
	"context"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	Path = "/auth/callback"

	// fragmentParam carries an implicit flow fragment back to the server. Browsers never
	// send the fragment itself.
	fragmentParam = "fragment"

	msgSignedIn  = "تم تسجيل الدخول بنجاح!"
	msgCloseTab  = "يمكنك إغلاق هذه الصفحة والعودة إلى التطبيق."
	msgRelaying  = "جاري إكمال تسجيل الدخول..."
	msgNoDetails = "لم يتم استلام بيانات تسجيل الدخول"
)

type Completer interface {
	HandleOAuthCallback(ctx context.Context, callbackURL *url.URL) (*users.User, error)
}

type Handler struct {
	completer Completer
	logger    zerolog.Logger
	onResult  func(*users.User, error)
	router    chi.Router
}

type Option func(*Handler)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithResult calls fn once per completed callback with the outcome.
func WithResult(fn func(*users.User, error)) Option {
	return func(h *Handler) {
		h.onResult = fn
	}
}

func NewHandler(completer Completer, options ...Option) *Handler {
	h := &Handler{
		completer: completer,
		logger:    log.Logger,
		onResult:  func(*users.User, error) {},
	}
	for _, opt := range options {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, h.logRequests, frameSecurity)
	r.Get(Path, h.callback)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("code") == "" && query.Get("error") == "" && query.Get(fragmentParam) == "" {
		// Tokens, if any, are in the fragment: let the browser send them back.
		render(w, http.StatusOK, page{Title: msgRelaying, Relay: true, RelayPath: Path, NoDetails: msgNoDetails})
		return
	}

	callbackURL := *r.URL
	if fragment := query.Get(fragmentParam); fragment != "" {
		query.Del(fragmentParam)
		callbackURL.RawQuery = query.Encode()
		callbackURL.Fragment = fragment
	}

	user, err := h.completer.HandleOAuthCallback(r.Context(), &callbackURL)
	h.onResult(user, err)
	if err != nil {
		h.logger.Warn().Err(err).Msg("oauth callback failed")
		render(w, http.StatusBadRequest, page{Title: err.Error()})
		return
	}
	render(w, http.StatusOK, page{Title: msgSignedIn, Name: user.Name, Detail: msgCloseTab})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func frameSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type page struct {
	Title     string
	Name      string
	Detail    string
	Relay     bool
	RelayPath string
	NoDetails string
}

var pageTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Name}}<p>{{.Name}}</p>{{end}}
{{if .Detail}}<p>{{.Detail}}</p>{{end}}
{{if .Relay}}<p id="status"></p>
<script>
if (window.location.hash.length > 1) {
  window.location.replace({{.RelayPath}} + "?fragment=" + encodeURIComponent(window.location.hash.substring(1)));
} else {
  document.getElementById("status").textContent = {{.NoDetails}};
}
</script>{{end}}
</body>
</html>
`))

func render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, p)
}
