package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers the /debug/pprof handlers on DefaultServeMux
)

// startPprof serves the pprof handlers on addr in the background. The
// listener stays up for the life of the process; a bind failure is logged
// and otherwise ignored.
func startPprof(addr string) {
	go func() {
		Logger().Info("pprof_listen", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			Logger().Error("pprof_exit", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
}
