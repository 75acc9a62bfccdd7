package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/cartship/flutterwave-gateway/api/responses"
	"github.com/cartship/flutterwave-gateway/pkg/config"
	"github.com/cartship/flutterwave-gateway/pkg/db"
	pkgerrors "github.com/cartship/flutterwave-gateway/pkg/errors"
	"github.com/cartship/flutterwave-gateway/pkg/logger"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Gateway-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every backing store. Failures are combined so one probe
// reports everything that is down, not just the first dependency checked.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, cache db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Gateway-Env", cfg.App.Env)

		var errs error
		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		if errs != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "dependencies not ready"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
