package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-sync/api/responses"
	"github.com/angelmondragon/tableside-sync/pkg/config"
	"github.com/angelmondragon/tableside-sync/pkg/db"
	pkgerrors "github.com/angelmondragon/tableside-sync/pkg/errors"
	"github.com/angelmondragon/tableside-sync/pkg/logger"
)

const envHeader = "X-Tableside-Env"

// Healthz reports whether the device store answers.
func Healthz(cfg *config.Config, pinger db.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg != nil {
			w.Header().Set(envHeader, cfg.App.Env)
		}
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeLocalStorage, err, "device store unreachable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
