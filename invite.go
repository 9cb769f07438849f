package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/partyhost/internal/party"
)

const qrSize = 320

type InviteResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// baseURL derives the externally visible origin, respecting TLS and
// X-Forwarded-Proto if present.
func baseURL(cfg *Config, r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix
}

func serveRoomSummary(cfg *Config, d *party.Dispatcher, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		summary, err := d.RoomSummary(p.ByName("code"))
		if err != nil {
			if err := writeError(cfg, w, err); err != nil {
				errs <- err
			}

			return
		}

		if err := writeJSON(cfg, w, http.StatusOK, summary); err != nil {
			errs <- err
		}
	}
}

func serveCreateInvite(cfg *Config, log zerolog.Logger, d *party.Dispatcher, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		token, err := d.CreateInvite(p.ByName("code"))
		if err != nil {
			if err := writeError(cfg, w, err); err != nil {
				errs <- err
			}

			return
		}

		log.Debug().Str("room", p.ByName("code")).Str("ip", realIP(r)).Msg("SERVE: Created invite")

		if err := writeJSON(cfg, w, http.StatusCreated, InviteResponse{
			Token: token,
			URL:   baseURL(cfg, r) + "/invite/" + token,
		}); err != nil {
			errs <- err
		}
	}
}

func serveInvite(cfg *Config, d *party.Dispatcher, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, ok := d.ResolveInvite(p.ByName("token"))
		if !ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNotFound)

			if _, err := w.Write([]byte(newPage("Invite Not Found", "This invite has expired or never existed."))); err != nil {
				errs <- err
			}

			return
		}

		securityHeaders(cfg, w)
		http.Redirect(w, r, cfg.prefix+"/rooms/"+code, http.StatusTemporaryRedirect)
	}
}

// serveRoomQR renders a PNG QR code of a fresh invite link for the room.
func serveRoomQR(cfg *Config, log zerolog.Logger, d *party.Dispatcher, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		token, err := d.CreateInvite(p.ByName("code"))
		if err != nil {
			if err := writeError(cfg, w, err); err != nil {
				errs <- err
			}

			return
		}

		png, err := qrcode.Encode(baseURL(cfg, r)+"/invite/"+token, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		log.Debug().Msgf("SERVE: QR code for %s (%s) to %s in %s",
			p.ByName("code"),
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
