package credential

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/secure"
)

type bundleGenerator interface {
	GenerateSecretBundle(ctx context.Context) (*entity.Bundle, error)
}

// Handler exposes bundle generation over HTTP for bootstrap tooling.
type Handler struct {
	gen    bundleGenerator
	logger *zap.SugaredLogger
}

func NewHandler(gen bundleGenerator, logger *zap.SugaredLogger) *Handler {
	return &Handler{gen: gen, logger: logger}
}

// Generate responds with a fresh bundle in env file format.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	b, err := h.gen.GenerateSecretBundle(r.Context())
	if err != nil {
		h.logger.Warnw("bundle generation failed", "err", err)
		switch {
		case errors.Is(err, secure.ErrRandomSourceUnavailable):
			http.Error(w, "random source unavailable", http.StatusServiceUnavailable)
		case errors.Is(err, context.Canceled):
			// client went away
		default:
			http.Error(w, "generation failed", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Bundle-Id", b.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RenderEnv(b)))
}
