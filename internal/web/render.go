package web

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

func render(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		log.Error().Err(err).Str("template", t.Name()).Msg("web: render failed")
	}
}
