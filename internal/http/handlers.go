package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/log"
	"moff.io/wallet-verify/pkg/log/meta"
)

type pageData struct {
	verify.Snapshot
	PairingURI string
}

func (s *Server) healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"views":  s.store.Len(),
	})
}

// createView handles a page load from a verification link or the Discord
// redirect, then redirects to the view so reloading does not replay the code.
func (s *Server) createView(ctx *gin.Context) {
	identity := verify.ParseIdentity(ctx.Request.URL.Query())
	if !identity.Valid() {
		s.renderInvalid(ctx, http.StatusBadRequest)
		return
	}
	v := verify.NewView(s.store.NewID(), identity, s.deps)
	meta.WithValue(ctx.Request.Context(), meta.ViewIDKey, v.ID())
	v.Load(ctx.Request.Context())
	s.store.Add(v)
	ctx.Redirect(http.StatusSeeOther, viewPath(v.ID()))
}

func (s *Server) showView(ctx *gin.Context) {
	v, ok := s.lookup(ctx)
	if !ok {
		s.renderMissing(ctx)
		return
	}
	s.render(ctx, http.StatusOK, v)
}

func (s *Server) viewState(ctx *gin.Context) {
	v, ok := s.lookup(ctx)
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"status": verify.StatusInvalidLink})
		return
	}
	ctx.JSON(http.StatusOK, v.Snapshot())
}

func (s *Server) pairingQRCode(ctx *gin.Context) {
	v, ok := s.lookup(ctx)
	if !ok {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}
	pairer, ok := v.Pairing(ctx.Request.Context())
	if !ok {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}
	png, err := pairer.QRCode()
	if err != nil {
		log.Errorf("view %v: qr code:%v", v.ID(), err)
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.Data(http.StatusOK, "image/png", png)
}

// step runs one button of the page. Browsers are redirected back to the
// page, JSON clients get the resulting snapshot.
func (s *Server) step(run func(ctx context.Context, v *verify.View)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		v, ok := s.lookup(ctx)
		if !ok {
			if wantsJSON(ctx) {
				ctx.JSON(http.StatusNotFound, gin.H{"status": verify.StatusInvalidLink})
				return
			}
			s.renderMissing(ctx)
			return
		}
		run(ctx.Request.Context(), v)
		if wantsJSON(ctx) {
			ctx.JSON(http.StatusOK, v.Snapshot())
			return
		}
		ctx.Redirect(http.StatusSeeOther, viewPath(v.ID()))
	}
}

func (s *Server) lookup(ctx *gin.Context) (*verify.View, bool) {
	id := ctx.Param("id")
	meta.WithValue(ctx.Request.Context(), meta.ViewIDKey, id)
	return s.store.Get(id)
}

func (s *Server) render(ctx *gin.Context, code int, v *verify.View) {
	data := pageData{Snapshot: v.Snapshot()}
	if pairer, ok := v.Pairing(ctx.Request.Context()); ok {
		data.PairingURI = pairer.PairingURI()
	}
	ctx.Header("Cache-Control", "no-store")
	ctx.HTML(code, pageTemplate, data)
}

// renderMissing shows unknown and expired views as an invalid link.
func (s *Server) renderMissing(ctx *gin.Context) {
	s.renderInvalid(ctx, http.StatusNotFound)
}

func (s *Server) renderInvalid(ctx *gin.Context, code int) {
	ctx.HTML(code, pageTemplate, pageData{
		Snapshot: verify.Snapshot{Status: verify.StatusInvalidLink},
	})
}

func viewPath(id string) string {
	return "/verify/" + id
}

func wantsJSON(ctx *gin.Context) bool {
	return strings.Contains(ctx.GetHeader("Accept"), "application/json")
}
