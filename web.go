package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/Seednode/partyhost/internal/clock"
	"github.com/Seednode/partyhost/internal/games/wordduel"
	"github.com/Seednode/partyhost/internal/party"
	"github.com/Seednode/partyhost/internal/rewards"
	"github.com/Seednode/partyhost/internal/rooms"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, log zerolog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("partyhost v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		log.Debug().Msgf("SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// newDispatcher wires the hosted games and their collaborators into a
// dispatcher that delivers through hub.
func newDispatcher(cfg *Config, log zerolog.Logger, clk clock.Clock, hub *Hub) (*party.Dispatcher, error) {
	granter := rewards.Nop()
	if cfg.rewardsURL != "" {
		g, err := rewards.NewHTTPGranter(cfg.rewardsURL, nil, log)
		if err != nil {
			return nil, err
		}
		granter = g
	}

	duel := wordduel.New(wordduel.Options{
		TimerMin: cfg.timerMin,
		TimerMax: cfg.timerMax,
		Rewards:  granter,
	})

	return party.New(party.Config{
		Rooms: rooms.Options{
			DeleteGrace: cfg.roomGrace,
			PlayerGrace: cfg.playerTimeout,
			IdleTimeout: cfg.roomTimeout,
			InviteTTL:   cfg.inviteTimeout,
		},
		SessionTTL: cfg.sessionTimeout,
	}, clk, hub, log, duel), nil
}

func newRouter(cfg *Config, log zerolog.Logger, d *party.Dispatcher, hub *Hub, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("SERVE: Recovered from handler panic")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, d, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, log, errs))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, log, d, hub))

	mux.GET(cfg.prefix+"/rooms/:code", serveRoomSummary(cfg, d, errs))

	mux.POST(cfg.prefix+"/rooms/:code/invites", serveCreateInvite(cfg, log, d, errs))

	mux.GET(cfg.prefix+"/rooms/:code/qr", serveRoomQR(cfg, log, d, errs))

	mux.GET(cfg.prefix+"/invite/:token", serveInvite(cfg, d, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, log, mux)
	}

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	log := newLogger(cfg, os.Stderr)

	log.Info().Msgf("START: partyhost v%s", releaseVersion)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	hub := newHub(log)

	d, err := newDispatcher(cfg, log, clock.Real(), hub)
	if err != nil {
		return err
	}

	errs := make(chan error, 64)
	go func() {
		for err := range errs {
			log.Debug().Err(err).Msg("SERVE: Write failed")
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, log, d, hub, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	go d.RunSweeper(ctx, cfg.sweepInterval)

	listenErr := make(chan error, 1)
	go func() {
		var err error
		log.Info().Msgf("SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		d.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	hub.closeAll()
	d.Close()

	log.Info().Msg("SERVE: Shut down")

	return nil
}
